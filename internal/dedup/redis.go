package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces dedup keys in a shared Redis.
const DefaultKeyPrefix = "boardflow:dedup:"

// Redis stores keys with SET NX PX so every instance sees the same window.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis creates a Redis deduper. A non-positive ttl uses DefaultTTL.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl, prefix: DefaultKeyPrefix}
}

func (r *Redis) key(key string) string {
	return r.prefix + key
}

// Add implements Deduper.
func (r *Redis) Add(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	added, err := r.client.SetNX(ctx, r.key(key), 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("recording dedup key: %w", err)
	}
	return added, nil
}

// Remove implements Deduper.
func (r *Redis) Remove(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("removing dedup key: %w", err)
	}
	return nil
}

// HealthCheck pings the Redis server.
func (r *Redis) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
