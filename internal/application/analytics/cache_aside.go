package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pharmalytics/backend/internal/infrastructure/cache"
	"github.com/pharmalytics/backend/internal/infrastructure/logger"
	"github.com/pharmalytics/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Result is a list of metric rows annotated with where it came from
type Result[T any] struct {
	Rows       []T
	Count      int
	Cached     bool
	ComputedAt time.Time
}

// cachedPayload is the JSON document stored under a cache key
type cachedPayload[T any] struct {
	Rows       []T       `json:"rows"`
	Count      int       `json:"count"`
	ComputedAt time.Time `json:"computedAt"`
}

// CacheAside serves analytics results from a ResultStore and computes them on a miss.
// Store failures are logged and downgraded to a miss or a skipped write.
// Concurrent misses on one key share a single computation.
type CacheAside struct {
	store   cache.ResultStore
	enabled bool
	metrics *telemetry.AnalyticsMetrics
	logger  *zap.Logger
	group   singleflight.Group
	now     func() time.Time
}

// NewCacheAside creates a cache-aside controller. A nil store disables caching.
func NewCacheAside(store cache.ResultStore, enabled bool, metrics *telemetry.AnalyticsMetrics, logger *zap.Logger) *CacheAside {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheAside{
		store:   store,
		enabled: enabled && store != nil,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Enabled reports whether results are read from and written to the store
func (c *CacheAside) Enabled() bool { return c.enabled }

// Fetch returns the rows cached under key, or computes, stores and returns them.
func Fetch[T any](ctx context.Context, c *CacheAside, endpoint, key string, ttl time.Duration, compute func(context.Context) ([]T, error)) (Result[T], error) {
	if !c.enabled {
		rows, err := compute(ctx)
		if err != nil {
			return Result[T]{}, err
		}
		if rows == nil {
			rows = []T{}
		}
		return Result[T]{Rows: rows, Count: len(rows), ComputedAt: c.now()}, nil
	}

	if payload, ok := lookup[T](ctx, c, endpoint, key); ok {
		c.metrics.RecordCacheHit(ctx, endpoint)
		return Result[T]{Rows: payload.Rows, Count: payload.Count, Cached: true, ComputedAt: payload.ComputedAt}, nil
	}
	c.metrics.RecordCacheMiss(ctx, endpoint)

	load := func() (any, error) {
		return computeAndStore(ctx, c, endpoint, key, ttl, compute)
	}
	v, err, shared := c.group.Do(key, load)
	if err != nil && shared && ctx.Err() == nil && isCancellation(err) {
		// the caller that ran the shared computation went away; this caller has not
		v, err = load()
	}
	if err != nil {
		return Result[T]{}, err
	}
	payload := v.(cachedPayload[T])
	return Result[T]{Rows: payload.Rows, Count: payload.Count, ComputedAt: payload.ComputedAt}, nil
}

func lookup[T any](ctx context.Context, c *CacheAside, endpoint, key string) (cachedPayload[T], bool) {
	var payload cachedPayload[T]
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.metrics.RecordCacheError(ctx, endpoint, "get")
		c.log(ctx).Warn("Cache read failed, computing result",
			zap.String("endpoint", endpoint),
			zap.String("cache_key", key),
			zap.String("backend", c.store.Backend()),
			zap.Error(err),
		)
		return payload, false
	}
	if !ok {
		return payload, false
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.metrics.RecordCacheError(ctx, endpoint, "decode")
		c.log(ctx).Warn("Discarding undecodable cache entry",
			zap.String("endpoint", endpoint),
			zap.String("cache_key", key),
			zap.Error(err),
		)
		return payload, false
	}
	return payload, true
}

func computeAndStore[T any](ctx context.Context, c *CacheAside, endpoint, key string, ttl time.Duration, compute func(context.Context) ([]T, error)) (cachedPayload[T], error) {
	rows, err := compute(ctx)
	if err != nil {
		return cachedPayload[T]{}, err
	}
	payload := cachedPayload[T]{Rows: rows, Count: len(rows), ComputedAt: c.now()}
	if payload.Rows == nil {
		payload.Rows = []T{}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		c.metrics.RecordCacheError(ctx, endpoint, "encode")
		c.log(ctx).Warn("Failed to encode result for cache",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		return payload, nil
	}
	if err := c.store.SetEx(ctx, key, raw, ttl); err != nil {
		c.metrics.RecordCacheError(ctx, endpoint, "set")
		c.log(ctx).Warn("Cache write failed, result not cached",
			zap.String("endpoint", endpoint),
			zap.String("cache_key", key),
			zap.String("backend", c.store.Backend()),
			zap.Error(err),
		)
	}
	return payload, nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// log returns the controller logger enriched with the request fields of ctx
func (c *CacheAside) log(ctx context.Context) *zap.Logger {
	return c.logger.With(logger.Fields(ctx)...)
}
