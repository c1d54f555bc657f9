package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when metrics are built without a meter.
var ErrMeterNil = errors.New("telemetry: meter is nil")

// AnalyticsMetrics holds the cache and query instruments of the analytics service.
type AnalyticsMetrics struct {
	cacheHits     *Counter
	cacheMisses   *Counter
	cacheErrors   *Counter
	queryDuration *Histogram
	queryErrors   *Counter
}

// NewAnalyticsMetrics creates the analytics instruments on meter.
func NewAnalyticsMetrics(meter metric.Meter) (*AnalyticsMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &AnalyticsMetrics{}
	var err error
	if m.cacheHits, err = NewCounter(meter, "analytics_cache_hits_total", "Analytics results served from cache", "{request}"); err != nil {
		return nil, err
	}
	if m.cacheMisses, err = NewCounter(meter, "analytics_cache_misses_total", "Analytics results computed from the database", "{request}"); err != nil {
		return nil, err
	}
	if m.cacheErrors, err = NewCounter(meter, "analytics_cache_errors_total", "Failed cache reads and writes", "{error}"); err != nil {
		return nil, err
	}
	if m.queryErrors, err = NewCounter(meter, "analytics_query_errors_total", "Failed analytics computations", "{error}"); err != nil {
		return nil, err
	}
	m.queryDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "analytics_query_duration_seconds",
		Description: "Duration of analytics computations on a cache miss",
		Unit:        "s",
		Boundaries:  QueryDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordCacheHit counts a result served from cache.
func (m *AnalyticsMetrics) RecordCacheHit(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.cacheHits.Inc(ctx, AttrEndpoint.String(endpoint))
}

// RecordCacheMiss counts a result that had to be computed.
func (m *AnalyticsMetrics) RecordCacheMiss(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.cacheMisses.Inc(ctx, AttrEndpoint.String(endpoint))
}

// RecordCacheError counts a failed cache operation ("get" or "set").
func (m *AnalyticsMetrics) RecordCacheError(ctx context.Context, endpoint, operation string) {
	if m == nil {
		return
	}
	m.cacheErrors.Inc(ctx, AttrEndpoint.String(endpoint), AttrOperation.String(operation))
}

// RecordQuery records the duration and outcome of one computation.
func (m *AnalyticsMetrics) RecordQuery(ctx context.Context, endpoint, mode string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		m.queryErrors.Inc(ctx, AttrEndpoint.String(endpoint), AttrMode.String(mode))
	}
	m.queryDuration.RecordDuration(ctx, d,
		AttrEndpoint.String(endpoint),
		AttrMode.String(mode),
		AttrOutcome.String(outcome),
	)
}
