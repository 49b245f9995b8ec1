package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Qdrant   QdrantConfig
	Gemini   GeminiConfig
	Index    IndexConfig
	Matching MatchingConfig
	Worker   WorkerConfig
	RabbitMQ RabbitMQConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// StatusTTL bounds how long per-stage status survives after the last update.
	StatusTTL time.Duration
}

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
}

type GeminiConfig struct {
	APIKey     string
	Model      string
	EmbedModel string
	MaxRetries int
}

type IndexConfig struct {
	Backend      string
	Retain       int
	BuildTimeout time.Duration
}

type MatchingConfig struct {
	K                int
	MinSimilarity    float64
	TopN             int
	BatchSize        int
	Threshold        float64
	CallTimeout      time.Duration
	LLMTimeout       time.Duration
	DefaultRequester string
	OpsContacts      []string
}

type WorkerConfig struct {
	Concurrency int
	Queue       string
}

type RabbitMQConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

type LogConfig struct {
	JSON  bool
	Debug bool
}

// env maps configuration keys to the environment variables that override them.
var env = map[string]string{
	"server.port":                "PORT",
	"server.env":                 "ENV",
	"database.host":              "DB_HOST",
	"database.port":              "DB_PORT",
	"database.user":              "DB_USER",
	"database.password":          "DB_PASSWORD",
	"database.name":              "DB_NAME",
	"redis.addr":                 "REDIS_ADDR",
	"redis.password":             "REDIS_PASSWORD",
	"redis.db":                   "REDIS_DB",
	"redis.status_ttl":           "STATUS_TTL",
	"qdrant.url":                 "QDRANT_URL",
	"qdrant.api_key":             "QDRANT_API_KEY",
	"qdrant.collection":          "QDRANT_COLLECTION",
	"gemini.api_key":             "GEMINI_API_KEY",
	"gemini.model":               "GEMINI_MODEL",
	"gemini.embed_model":         "GEMINI_EMBED_MODEL",
	"gemini.max_retries":         "GEMINI_MAX_RETRIES",
	"index.backend":              "INDEX_BACKEND",
	"index.retain":               "INDEX_RETAIN",
	"index.build_timeout":        "INDEX_BUILD_TIMEOUT",
	"matching.k":                 "MATCH_K",
	"matching.min_similarity":    "MATCH_MIN_SIMILARITY",
	"matching.top_n":             "MATCH_TOP_N",
	"matching.batch_size":        "MATCH_BATCH_SIZE",
	"matching.threshold":         "MATCH_THRESHOLD",
	"matching.call_timeout":      "MATCH_CALL_TIMEOUT",
	"matching.llm_timeout":       "MATCH_LLM_TIMEOUT",
	"matching.default_requester": "MATCH_DEFAULT_REQUESTER",
	"matching.ops_contacts":      "MATCH_OPS_CONTACTS",
	"worker.concurrency":         "WORKER_CONCURRENCY",
	"worker.queue":               "WORKER_QUEUE",
	"rabbitmq.url":               "RABBITMQ_URL",
	"rabbitmq.exchange":          "RABBITMQ_EXCHANGE",
	"rabbitmq.routing_key":       "RABBITMQ_ROUTING_KEY",
	"log.json":                   "LOG_JSON",
	"log.debug":                  "LOG_DEBUG",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.env", "development")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "consultant_matcher")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.status_ttl", "24h")
	v.SetDefault("qdrant.url", "http://localhost:6334")
	v.SetDefault("qdrant.api_key", "")
	v.SetDefault("qdrant.collection", "consultant_profiles")
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.embed_model", "text-embedding-004")
	v.SetDefault("gemini.max_retries", 3)
	v.SetDefault("index.backend", "memory")
	v.SetDefault("index.retain", 2)
	v.SetDefault("index.build_timeout", "10m")
	v.SetDefault("matching.k", 10)
	v.SetDefault("matching.min_similarity", 0.0)
	v.SetDefault("matching.top_n", 3)
	v.SetDefault("matching.batch_size", 10)
	v.SetDefault("matching.threshold", 70.0)
	v.SetDefault("matching.call_timeout", "30s")
	v.SetDefault("matching.llm_timeout", "90s")
	v.SetDefault("matching.default_requester", "")
	v.SetDefault("matching.ops_contacts", "")
	v.SetDefault("worker.concurrency", 3)
	v.SetDefault("worker.queue", "matching")
	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", "notifications")
	v.SetDefault("rabbitmq.routing_key", "match.notification")
	v.SetDefault("log.json", false)
	v.SetDefault("log.debug", false)
}

// Load reads an optional .env file and config.yaml, then applies environment overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()
	for key, name := range env {
		if err := v.BindEnv(key, name); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", name, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetString("server.port"),
			Env:  v.GetString("server.env"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("database.host"),
			Port:     v.GetString("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.name"),
		},
		Redis: RedisConfig{
			Addr:      v.GetString("redis.addr"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			StatusTTL: v.GetDuration("redis.status_ttl"),
		},
		Qdrant: QdrantConfig{
			URL:        v.GetString("qdrant.url"),
			APIKey:     v.GetString("qdrant.api_key"),
			Collection: v.GetString("qdrant.collection"),
		},
		Gemini: GeminiConfig{
			APIKey:     v.GetString("gemini.api_key"),
			Model:      v.GetString("gemini.model"),
			EmbedModel: v.GetString("gemini.embed_model"),
			MaxRetries: v.GetInt("gemini.max_retries"),
		},
		Index: IndexConfig{
			Backend:      strings.ToLower(v.GetString("index.backend")),
			Retain:       v.GetInt("index.retain"),
			BuildTimeout: v.GetDuration("index.build_timeout"),
		},
		Matching: MatchingConfig{
			K:                v.GetInt("matching.k"),
			MinSimilarity:    v.GetFloat64("matching.min_similarity"),
			TopN:             v.GetInt("matching.top_n"),
			BatchSize:        v.GetInt("matching.batch_size"),
			Threshold:        v.GetFloat64("matching.threshold"),
			CallTimeout:      v.GetDuration("matching.call_timeout"),
			LLMTimeout:       v.GetDuration("matching.llm_timeout"),
			DefaultRequester: v.GetString("matching.default_requester"),
			OpsContacts:      splitList(v.GetString("matching.ops_contacts")),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("worker.concurrency"),
			Queue:       v.GetString("worker.queue"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:        v.GetString("rabbitmq.url"),
			Exchange:   v.GetString("rabbitmq.exchange"),
			RoutingKey: v.GetString("rabbitmq.routing_key"),
		},
		Log: LogConfig{
			JSON:  v.GetBool("log.json"),
			Debug: v.GetBool("log.debug"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Index.Backend {
	case "memory", "qdrant", "pgvector":
	default:
		return fmt.Errorf("unknown index backend %q", c.Index.Backend)
	}
	if c.Index.Retain < 1 {
		return fmt.Errorf("index retain must be at least 1, got %d", c.Index.Retain)
	}
	if c.Matching.K < 1 {
		return fmt.Errorf("matching k must be positive, got %d", c.Matching.K)
	}
	if c.Matching.TopN < 1 {
		return fmt.Errorf("matching top n must be positive, got %d", c.Matching.TopN)
	}
	if c.Matching.BatchSize < 1 {
		return fmt.Errorf("matching batch size must be positive, got %d", c.Matching.BatchSize)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
