package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/gudang/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	SetJobState(ctx context.Context, jobID uuid.UUID, state JobState, ttl time.Duration) error
	GetJobState(ctx context.Context, jobID uuid.UUID) (JobState, bool, error)
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
	// Signal wakes one worker blocked in WaitSignal for kind.
	Signal(ctx context.Context, kind models.JobKind, jobID uuid.UUID) error
	// WaitSignal blocks until a signal for kind arrives or timeout elapses.
	// It reports false on timeout.
	WaitSignal(ctx context.Context, kind models.JobKind, timeout time.Duration) (bool, error)
}

// JobState is the cached view of a job, enough to answer a poll for a job
// that has not finished.
type JobState struct {
	Kind   models.JobKind `json:"kind"`
	Status string         `json:"status"`
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) SetJobState(ctx context.Context, jobID uuid.UUID, state JobState, ttl time.Duration) error {
	b, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, JobStatusKey(jobID), b, ttl).Err()
}

func (c *RedisCache) GetJobState(ctx context.Context, jobID uuid.UUID) (JobState, bool, error) {
	val, err := c.client.Get(ctx, JobStatusKey(jobID)).Bytes()
	if err == redis.Nil {
		return JobState{}, false, nil
	}
	if err != nil {
		return JobState{}, false, err
	}
	var state JobState
	if err := json.Unmarshal(val, &state); err != nil {
		return JobState{}, false, err
	}
	return state, true, nil
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (c *RedisCache) Signal(ctx context.Context, kind models.JobKind, jobID uuid.UUID) error {
	return c.client.LPush(ctx, QueueKey(kind), jobID.String()).Err()
}

func (c *RedisCache) WaitSignal(ctx context.Context, kind models.JobKind, timeout time.Duration) (bool, error) {
	_, err := c.client.BRPop(ctx, timeout, QueueKey(kind)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
