// Package cache holds the analytics result stores. Values are opaque JSON
// payloads keyed by the derived analytics cache key; a store only knows how
// to read them and write them with a TTL.
package cache

import (
	"context"
	"time"
)

// ResultStore is a TTL key-value store for serialized analytics results.
// Get reports a miss with found=false and a nil error.
type ResultStore interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
	// Backend names the implementation ("redis" or "memory")
	Backend() string
}
