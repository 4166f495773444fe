package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "companion:settings:"

// RedisBackend is the account-synced backend.
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisBackend(client *redis.Client, prefix string, ttl time.Duration) *RedisBackend {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisBackend{client: client, prefix: prefix, ttl: ttl}
}

// Get implements domain.SettingsBackend.
// Returns nil if the document is not found (not an error).
func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// Refresh TTL on read
	if r.ttl > 0 {
		_ = r.client.Expire(ctx, r.key(key), r.ttl).Err()
	}
	return val, nil
}

// Put implements domain.SettingsBackend.
func (r *RedisBackend) Put(ctx context.Context, key string, document []byte) error {
	return r.client.Set(ctx, r.key(key), document, r.ttl).Err()
}

// Delete implements domain.SettingsBackend.
func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// Close implements domain.SettingsBackend.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}

func (r *RedisBackend) key(key string) string {
	return r.prefix + key
}
