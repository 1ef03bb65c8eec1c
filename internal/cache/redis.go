package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps entries as plain string keys with native expiry.
type RedisBackend struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisBackend creates a backend on rdb. Keys are stored under prefix.
func NewRedisBackend(rdb *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "parceltrack:cache:"
	}
	return &RedisBackend{rdb: rdb, prefix: prefix}
}

func (b *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := b.rdb.Get(ctx, b.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (b *RedisBackend) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	return b.rdb.Set(ctx, b.prefix+key, value, ttl).Err()
}
