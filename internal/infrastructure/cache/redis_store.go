package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pharmalytics/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
)

// redisClient is the subset of *redis.Client used by RedisResultStore
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetEx(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisResultStore implements ResultStore with Redis GET / SETEX
type RedisResultStore struct {
	client    redisClient
	keyPrefix string
}

// NewRedisResultStore connects to Redis and verifies the connection
func NewRedisResultStore(cfg config.RedisConfig, keyPrefix string) (*RedisResultStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisResultStore{client: client, keyPrefix: keyPrefix}, nil
}

// Get reads the payload stored under key
func (s *RedisResultStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s from Redis: %w", key, err)
	}
	return data, true, nil
}

// SetEx stores the payload under key for ttl
func (s *RedisResultStore) SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.SetEx(ctx, s.keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s in Redis: %w", key, err)
	}
	return nil
}

// Ping checks the Redis connection
func (s *RedisResultStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisResultStore) Close() error {
	return s.client.Close()
}

// Backend returns "redis"
func (s *RedisResultStore) Backend() string { return "redis" }
