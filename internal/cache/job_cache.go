package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voltplatform/volt-backend/internal/models"
)

const jobKeyPrefix = "volt:synthesis:job:"

// JobCache stores finished synthesis jobs so polling skips the database
type JobCache interface {
	Get(ctx context.Context, id string) (*models.SynthesisJob, bool, error)
	Set(ctx context.Context, job *models.SynthesisJob) error
}

// RedisJobCache keeps terminal jobs in Redis as JSON
type RedisJobCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisJobCache wraps a Redis client
func NewRedisJobCache(client *redis.Client, ttl time.Duration) *RedisJobCache {
	return &RedisJobCache{client: client, ttl: ttl}
}

// Connect opens a Redis client and pings it. Returns nil, nil when addr is empty.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (c *RedisJobCache) Get(ctx context.Context, id string) (*models.SynthesisJob, bool, error) {
	data, err := c.client.Get(ctx, jobKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached job: %w", err)
	}

	var job models.SynthesisJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached job: %w", err)
	}
	return &job, true, nil
}

// Set caches a job. Non-terminal jobs are ignored since they still change.
func (c *RedisJobCache) Set(ctx context.Context, job *models.SynthesisJob) error {
	if !job.Terminal() {
		return nil
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := c.client.Set(ctx, jobKeyPrefix+job.ID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache job: %w", err)
	}
	return nil
}

// NopJobCache is used when Redis is not configured
type NopJobCache struct{}

func (NopJobCache) Get(context.Context, string) (*models.SynthesisJob, bool, error) {
	return nil, false, nil
}

func (NopJobCache) Set(context.Context, *models.SynthesisJob) error { return nil }
