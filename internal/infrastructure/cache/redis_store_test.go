package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pharmalytics/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRedis records commands and answers them from a map
type fakeRedis struct {
	data    map[string]string
	ttls    map[string]time.Duration
	failErr error
	closed  bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.failErr != nil {
		return redis.NewStringResult("", f.failErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) SetEx(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if f.failErr != nil {
		return redis.NewStatusResult("", f.failErr)
	}
	f.data[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.failErr)
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func TestRedisResultStore(t *testing.T) {
	ctx := context.Background()

	t.Run("SETEX then GET with the key prefix", func(t *testing.T) {
		fake := newFakeRedis()
		store := &RedisResultStore{client: fake, keyPrefix: "pharma:"}

		require.NoError(t, store.SetEx(ctx, "stock:ruptures:abc", []byte(`{"count":1}`), time.Hour))
		assert.Equal(t, time.Hour, fake.ttls["pharma:stock:ruptures:abc"])

		value, found, err := store.Get(ctx, "stock:ruptures:abc")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, `{"count":1}`, string(value))
	})

	t.Run("redis.Nil is a miss", func(t *testing.T) {
		store := &RedisResultStore{client: newFakeRedis()}

		value, found, err := store.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, value)
	})

	t.Run("connection errors are returned", func(t *testing.T) {
		fake := newFakeRedis()
		fake.failErr = errors.New("connection refused")
		store := &RedisResultStore{client: fake}

		_, _, err := store.Get(ctx, "k")
		assert.ErrorContains(t, err, "connection refused")
		assert.Error(t, store.SetEx(ctx, "k", []byte("v"), time.Minute))
		assert.Error(t, store.Ping(ctx))
	})

	t.Run("close releases the client", func(t *testing.T) {
		fake := newFakeRedis()
		store := &RedisResultStore{client: fake}
		require.NoError(t, store.Close())
		assert.True(t, fake.closed)
		assert.Equal(t, "redis", store.Backend())
	})
}

func TestNewResultStore(t *testing.T) {
	original := redisConnector
	t.Cleanup(func() { redisConnector = original })

	t.Run("memory backend", func(t *testing.T) {
		store, err := NewResultStore(config.CacheConfig{Backend: "memory"}, config.RedisConfig{}, zap.NewNop())
		require.NoError(t, err)
		defer store.Close()
		assert.Equal(t, "memory", store.Backend())
	})

	t.Run("redis backend when reachable", func(t *testing.T) {
		redisConnector = func(config.RedisConfig, string) (ResultStore, error) {
			return &RedisResultStore{client: newFakeRedis()}, nil
		}
		store, err := NewResultStore(config.CacheConfig{Backend: "redis"}, config.RedisConfig{}, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, "redis", store.Backend())
	})

	t.Run("falls back to memory when allowed", func(t *testing.T) {
		redisConnector = func(config.RedisConfig, string) (ResultStore, error) {
			return nil, errors.New("dial tcp: connection refused")
		}
		store, err := NewResultStore(config.CacheConfig{Backend: "redis", AllowMemoryFallback: true}, config.RedisConfig{}, zap.NewNop())
		require.NoError(t, err)
		defer store.Close()
		assert.Equal(t, "memory", store.Backend())
	})

	t.Run("fails without fallback", func(t *testing.T) {
		redisConnector = func(config.RedisConfig, string) (ResultStore, error) {
			return nil, errors.New("dial tcp: connection refused")
		}
		_, err := NewResultStore(config.CacheConfig{Backend: "redis"}, config.RedisConfig{}, zap.NewNop())
		assert.ErrorContains(t, err, "Redis required")
	})
}
