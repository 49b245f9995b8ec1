package cli

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"alfredoptarigan/consultant-matcher/internal/config"
	"alfredoptarigan/consultant-matcher/internal/index"
	"alfredoptarigan/consultant-matcher/internal/matching"
	"alfredoptarigan/consultant-matcher/internal/repositories"
	"alfredoptarigan/consultant-matcher/internal/services"
	"alfredoptarigan/consultant-matcher/internal/status"
)

// components is the wiring shared by every command.
type components struct {
	cfg *config.Config
	log *zap.Logger

	db       *gorm.DB
	jobs     repositories.JobRepository
	profiles repositories.ProfileRepository
	matches  repositories.MatchRepository

	sender  matching.Notifier
	closers []func() error
}

func newComponents(cfg *config.Config, log *zap.Logger) (*components, error) {
	db, err := config.InitDatabase(cfg, log)
	if err != nil {
		return nil, err
	}

	c := &components{
		cfg:      cfg,
		log:      log,
		db:       db,
		jobs:     repositories.NewJobRepository(db),
		profiles: repositories.NewProfileRepository(db),
		matches:  repositories.NewMatchRepository(db),
	}

	if sqlDB, err := db.DB(); err == nil {
		c.closers = append(c.closers, sqlDB.Close)
	}
	return c, nil
}

func (c *components) Close() {
	for n := len(c.closers) - 1; n >= 0; n-- {
		if err := c.closers[n](); err != nil {
			c.log.Warn("failed to close resource", zap.Error(err))
		}
	}
}

func (c *components) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.cfg.Redis.Addr,
		Password: c.cfg.Redis.Password,
		DB:       c.cfg.Redis.DB,
	}
}

func (c *components) redisClient(ctx context.Context) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     c.cfg.Redis.Addr,
		Password: c.cfg.Redis.Password,
		DB:       c.cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	c.closers = append(c.closers, client.Close)
	return client, nil
}

func (c *components) gemini(ctx context.Context) (services.GeminiService, error) {
	return services.NewGeminiService(ctx,
		c.cfg.Gemini.APIKey,
		c.cfg.Gemini.Model,
		c.cfg.Gemini.EmbedModel,
		c.cfg.Gemini.MaxRetries,
		c.log,
	)
}

func (c *components) backend() (index.Backend, error) {
	switch c.cfg.Index.Backend {
	case "qdrant":
		b, err := index.NewQdrantBackend(c.cfg.Qdrant.URL, c.cfg.Qdrant.APIKey, c.cfg.Qdrant.Collection)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, b.Close)
		return b, nil
	case "pgvector":
		return index.NewPgvectorBackend(c.db)
	default:
		return index.NewMemoryBackend(), nil
	}
}

// candidateIndex builds the index over the configured backend and restores
// the latest durable snapshot, if any.
func (c *components) candidateIndex(ctx context.Context, embedder index.Embedder) (*index.Index, error) {
	backend, err := c.backend()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s index backend: %w", c.cfg.Index.Backend, err)
	}

	idx := index.New(backend, embedder, index.Options{
		Retain:       c.cfg.Index.Retain,
		CallTimeout:  c.cfg.Matching.CallTimeout,
		BuildTimeout: c.cfg.Index.BuildTimeout,
		Logger:       c.log,
	})

	if _, err := idx.Restore(ctx); err != nil {
		return nil, fmt.Errorf("failed to restore index: %w", err)
	}
	return idx, nil
}

// notifier publishes to RabbitMQ when a broker is configured and only logs
// otherwise. Every caller shares the same connection.
func (c *components) notifier() (matching.Notifier, error) {
	if c.sender != nil {
		return c.sender, nil
	}
	if c.cfg.RabbitMQ.URL == "" {
		c.log.Warn("RABBITMQ_URL not set, notifications are only logged")
		c.sender = services.NewLogNotifier(c.log)
		return c.sender, nil
	}

	conn, err := amqp.Dial(c.cfg.RabbitMQ.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	n, err := services.NewRabbitNotifier(conn, c.cfg.RabbitMQ.Exchange, c.cfg.RabbitMQ.RoutingKey, c.log)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	c.closers = append(c.closers, conn.Close, n.Close)
	c.sender = n
	return n, nil
}

func (c *components) pipeline(idx *index.Index, gemini services.GeminiService, tracker *status.Tracker, notifier matching.Notifier) *matching.Pipeline {
	m := c.cfg.Matching
	return matching.NewPipeline(idx, gemini, gemini, tracker, c.matches, notifier, matching.Options{
		K:             m.K,
		MinSimilarity: m.MinSimilarity,
		TopN:          m.TopN,
		BatchSize:     m.BatchSize,
		Policy:        c.policy(),
		CallTimeout:   m.CallTimeout,
		LLMTimeout:    m.LLMTimeout,
	}, c.log)
}

func (c *components) policy() matching.NotificationPolicy {
	return matching.NotificationPolicy{
		Threshold:        c.cfg.Matching.Threshold,
		DefaultRequester: c.cfg.Matching.DefaultRequester,
		OpsContacts:      c.cfg.Matching.OpsContacts,
	}
}

// resender repeats notifications of stored records over the worker's channel.
func (c *components) resender() (*matching.Resender, error) {
	notifier, err := c.notifier()
	if err != nil {
		return nil, err
	}
	return matching.NewResender(c.matches, notifier, c.policy(), c.cfg.Matching.CallTimeout, c.log), nil
}

// worker assembles the matching worker; observers receive every status update.
func (c *components) worker(ctx context.Context, observers ...status.Observer) (*services.MatchWorker, *index.Index, *status.Tracker, error) {
	gemini, err := c.gemini(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	idx, err := c.candidateIndex(ctx, gemini)
	if err != nil {
		return nil, nil, nil, err
	}

	rdb, err := c.redisClient(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	tracker := status.NewTracker(status.NewRedisStore(rdb, c.cfg.Redis.StatusTTL), c.log, observers...)

	notifier, err := c.notifier()
	if err != nil {
		return nil, nil, nil, err
	}

	p := c.pipeline(idx, gemini, tracker, notifier)
	return services.NewMatchWorker(c.jobs, c.profiles, p, c.log), idx, tracker, nil
}
