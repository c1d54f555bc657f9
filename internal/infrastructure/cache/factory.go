package cache

import (
	"fmt"
	"time"

	"github.com/pharmalytics/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

const memoryCleanupInterval = 5 * time.Minute

// redisConnector is swapped in tests
var redisConnector = func(cfg config.RedisConfig, prefix string) (ResultStore, error) {
	return NewRedisResultStore(cfg, prefix)
}

// NewResultStore builds the store selected by cfg.Backend. When Redis is
// unreachable the in-memory store is used if AllowMemoryFallback is set.
func NewResultStore(cfg config.CacheConfig, redisCfg config.RedisConfig, logger *zap.Logger) (ResultStore, error) {
	if cfg.Backend == "memory" {
		logger.Info("using in-memory analytics result cache")
		return NewMemoryResultStore(memoryCleanupInterval), nil
	}

	store, err := redisConnector(redisCfg, cfg.KeyPrefix)
	if err == nil {
		logger.Info("using Redis analytics result cache", zap.String("addr", redisCfg.Addr()))
		return store, nil
	}
	if !cfg.AllowMemoryFallback {
		return nil, fmt.Errorf("Redis required for the result cache but unavailable: %w", err)
	}

	logger.Warn("Redis unavailable, falling back to in-memory result cache. "+
		"Cached results will not be shared across instances.",
		zap.Error(err),
	)
	return NewMemoryResultStore(memoryCleanupInterval), nil
}
