package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"alfredoptarigan/consultant-matcher/internal/models"
)

// RedisStore keeps one hash per job with a JSON-encoded status per stage field.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func statusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("match:status:%s", jobID)
}

func (r *RedisStore) Put(ctx context.Context, s models.AgentStatus) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}

	key := statusKey(s.JobID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, string(s.Stage), data)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	return err
}

func (r *RedisStore) Get(ctx context.Context, jobID uuid.UUID, stage models.Stage) (models.AgentStatus, bool, error) {
	data, err := r.client.HGet(ctx, statusKey(jobID), string(stage)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.AgentStatus{}, false, nil
		}
		return models.AgentStatus{}, false, err
	}

	var s models.AgentStatus
	if err := json.Unmarshal(data, &s); err != nil {
		return models.AgentStatus{}, false, fmt.Errorf("failed to decode %s status: %w", stage, err)
	}
	return s, true, nil
}

func (r *RedisStore) All(ctx context.Context, jobID uuid.UUID) ([]models.AgentStatus, error) {
	fields, err := r.client.HGetAll(ctx, statusKey(jobID)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]models.AgentStatus, 0, len(fields))
	for _, stage := range models.Stages {
		raw, ok := fields[string(stage)]
		if !ok {
			continue
		}
		var s models.AgentStatus
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, fmt.Errorf("failed to decode %s status: %w", stage, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *RedisStore) Clear(ctx context.Context, jobID uuid.UUID) error {
	return r.client.Del(ctx, statusKey(jobID)).Err()
}
