// Package ratelimit provides fixed-window rate limiting: a window opens
// on the first permitted call for a key and resets exactly at expiry,
// rather than sliding continuously.
package ratelimit

import (
	"context"
	"time"
)

// Limiter is the contract every backend implements.
type Limiter interface {
	// Allow reports whether the call identified by key is within limit
	// requests for the current window. The first call for a key opens
	// the window; it resets exactly window after that first call, not
	// on a rolling basis.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Close() error
}
