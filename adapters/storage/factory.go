package storage

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/satriahrh/cocoa-fruit/companion/domain"
)

// BackendType represents the type of settings backend.
type BackendType string

const (
	BackendMemory BackendType = "memory"
	BackendSQLite BackendType = "sqlite"
	BackendRedis  BackendType = "redis"
)

var (
	ErrInvalidConfig      = errors.New("invalid backend configuration")
	ErrInvalidBackendType = errors.New("invalid backend type")
)

// Option is a functional option for configuring a backend.
type Option func(*backendConfig)

type backendConfig struct {
	sqlitePath  string
	redisClient *redis.Client
	redisTTL    time.Duration
	redisPrefix string
}

// WithSQLitePath sets the database file for the sqlite backend.
func WithSQLitePath(path string) Option {
	return func(c *backendConfig) { c.sqlitePath = path }
}

// WithRedisClient sets the Redis client for the redis backend.
func WithRedisClient(client *redis.Client) Option {
	return func(c *backendConfig) { c.redisClient = client }
}

// WithRedisTTL expires documents that are not written for ttl. Zero keeps them forever.
func WithRedisTTL(ttl time.Duration) Option {
	return func(c *backendConfig) { c.redisTTL = ttl }
}

// WithRedisPrefix sets the key prefix used by the redis backend.
func WithRedisPrefix(prefix string) Option {
	return func(c *backendConfig) { c.redisPrefix = prefix }
}

// NewBackend creates a settings backend of the given type.
// The sqlite backend requires WithSQLitePath and the redis backend WithRedisClient.
func NewBackend(backendType BackendType, opts ...Option) (domain.SettingsBackend, error) {
	config := &backendConfig{redisPrefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(config)
	}

	switch backendType {
	case BackendMemory:
		return NewMemoryBackend(), nil
	case BackendSQLite:
		if config.sqlitePath == "" {
			return nil, ErrInvalidConfig
		}
		return NewSQLiteBackend(config.sqlitePath)
	case BackendRedis:
		if config.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return NewRedisBackend(config.redisClient, config.redisPrefix, config.redisTTL), nil
	default:
		return nil, ErrInvalidBackendType
	}
}
