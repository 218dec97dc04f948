package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a CounterStore shared across API instances. Counters are
// INCR + EXPIRE NX in one pipeline; blocks are plain keys whose TTL is the
// block window.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed counter store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (r *RedisStore) GetBlock(ctx context.Context, key string) (time.Time, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	until, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, nil
	}
	return until, true, nil
}

func (r *RedisStore) SetBlock(ctx context.Context, key string, until time.Time, ttl time.Duration) error {
	return r.client.Set(ctx, key, until.UTC().Format(time.RFC3339Nano), ttl).Err()
}

var _ CounterStore = (*RedisStore)(nil)
