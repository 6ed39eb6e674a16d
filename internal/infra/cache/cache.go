// Package cache provides the keyed accelerator the core consults
// opportunistically — a miss is never an error, and absence of a backend
// is never fatal to the caller.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Stats summarizes a cache's hit/miss behavior since construction.
type Stats struct {
	Hits   int64
	Misses int64
	Keys   int64
}

// Cache is the contract every backend implements. Get returns (nil, false)
// on a miss; Set/Delete/Clear never fail on a missing key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Clear removes every key matching pattern (a "*"-glob, as in Redis'
	// KEYS/SCAN pattern language).
	Clear(ctx context.Context, pattern string) error
	Stats(ctx context.Context) (Stats, error)
	// Idempotency is a single-writer guard: the first caller to acquire
	// key within ttl sees true; subsequent callers before expiry see false.
	Idempotency(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Close() error
}

// GetJSON is a generic helper that unmarshals a cached value. It returns
// ok=false both on a miss and when the stored bytes fail to unmarshal —
// a corrupt cache entry is treated the same as an absent one.
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, bool, error) {
	var zero T
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false, nil
	}
	return v, true, nil
}

// SetJSON marshals v with stable key ordering (Go's encoding/json already
// sorts map[string]any keys) and stores it with the given ttl.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, raw, ttl)
}
