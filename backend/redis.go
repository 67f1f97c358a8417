package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	// Redis address, host:port.
	Addr string `yaml:"addr" json:"addr"`

	// Password, empty for no auth.
	Password string `yaml:"password" json:"password"`

	// Database number.
	DB int `yaml:"db" json:"db"`

	// Key prefix prepended to every virtual path.
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`

	// Maximum retries per command.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// Connection pool size.
	PoolSize int `yaml:"pool_size" json:"pool_size"`
}

// DefaultRedisConfig returns the default Redis backend configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:       "localhost:6379",
		KeyPrefix:  "memflow:",
		MaxRetries: 3,
		PoolSize:   10,
	}
}

// RedisBackend stores virtual paths as Redis string keys. Values carry
// no TTL: memory files are durable until overwritten.
type RedisBackend struct {
	client *redis.Client
	config RedisConfig
	logger *zap.Logger
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(config RedisConfig, logger *zap.Logger) (*RedisBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:       config.Addr,
		Password:   config.Password,
		DB:         config.DB,
		MaxRetries: config.MaxRetries,
		PoolSize:   config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	b := &RedisBackend{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "redis_backend")),
	}
	b.logger.Info("redis backend initialized", zap.String("addr", config.Addr))
	return b, nil
}

func (b *RedisBackend) key(path string) string {
	return b.config.KeyPrefix + path
}

func (b *RedisBackend) Read(ctx context.Context, path string) (string, error) {
	val, err := b.client.Get(ctx, b.key(path)).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		b.logger.Error("redis read failed", zap.String("path", path), zap.Error(err))
		return "", fmt.Errorf("redis read %s: %w", path, err)
	}
	return val, nil
}

func (b *RedisBackend) Write(ctx context.Context, path string, data string) error {
	if err := b.client.Set(ctx, b.key(path), data, 0).Err(); err != nil {
		b.logger.Error("redis write failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("redis write %s: %w", path, err)
	}
	return nil
}

func (b *RedisBackend) Exists(ctx context.Context, path string) (bool, error) {
	n, err := b.client.Exists(ctx, b.key(path)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", path, err)
	}
	return n > 0, nil
}

// Close releases the underlying Redis connection pool.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

var _ Backend = (*RedisBackend)(nil)
