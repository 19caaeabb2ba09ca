package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is not found
var ErrNotFound = errors.New("not found")

// ErrBackendUnavailable is returned when the backend storage is unreachable
var ErrBackendUnavailable = errors.New("backend unavailable")

// Store defines the interface for a key-value store with TTL and
// glob-pattern key listing.
type Store interface {
	// String operations
	Set(ctx context.Context, key string, value []byte, ttl ...time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)

	// Key operations
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, keys ...string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Keys returns all live keys matching the glob pattern
	// (e.g. "pages:acme:*"). Patterns use '*', '?' and character classes.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Health check
	Ping(ctx context.Context) error

	// Cleanup
	Close() error
}
