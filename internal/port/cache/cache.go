// Package cache defines the port for the bounded result retention cache.
package cache

import (
	"context"
	"time"
)

// Cache is a bounded key-value cache with per-entry TTL. Used to retain
// terminal task results for postmortem lookup; eviction under pressure is
// acceptable.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close()
}
