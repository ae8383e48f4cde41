package tier

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisVolatile implements the Volatile contract on a Redis backend.
// Redis handles TTL expiry natively; expired keys simply stop resolving.
type RedisVolatile struct {
	client *redis.Client
}

// NewRedisVolatile creates a Redis-backed volatile tier.
func NewRedisVolatile(client *redis.Client) *RedisVolatile {
	if client == nil {
		panic("redis client cannot be nil")
	}
	return &RedisVolatile{client: client}
}

// Get returns the stored bytes for key, or ErrNotFound.
func (r *RedisVolatile) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Set stores value under key with the given TTL.
func (r *RedisVolatile) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		// Already expired, don't cache
		return nil
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (r *RedisVolatile) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Incr atomically increments the counter at key and returns the new value.
// The TTL is attached on the first increment only, so the window boundary
// set by the first request holds for the whole window.
func (r *RedisVolatile) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return incr.Val(), nil
}

var _ Volatile = (*RedisVolatile)(nil)
