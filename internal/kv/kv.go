// Package kv is the small key/value cache the client shares between
// components: resolved attachment URLs today.
package kv

import (
	"context"
	"errors"
	"time"
)

// Cache is a string key/value store with per-key expiry. Implementations are
// safe for concurrent use.
type Cache interface {
	// Get returns ErrMiss when the key is absent or expired.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value; ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// ErrMiss signals a cache miss.
var ErrMiss = errors.New("kv: miss")
