// Package cache provides the response cache for read-only dispatches.
package cache

import (
	"context"
	"errors"
	"time"
)

// Store errors.
var (
	// ErrCacheMiss indicates the key is absent or expired.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheCorrupt indicates the stored value failed to decode.
	// Callers treat it as a miss.
	ErrCacheCorrupt = errors.New("cache entry corrupt")
)

// Store is the backing key-value store for cached responses. Values
// are opaque encoded bytes; TTL handling is the store's concern.
type Store interface {
	// Get returns the value and its age. Expired or absent keys return
	// ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, time.Duration, error)

	// Set stores the value with the given TTL, replacing any previous
	// value and resetting its age.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a single key. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key with the given prefix and returns
	// the number removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)

	// DeleteContaining removes every key containing the given substring
	// and returns the number removed.
	DeleteContaining(ctx context.Context, substr string) (int, error)

	// Clear removes all keys and returns the number removed.
	Clear(ctx context.Context) (int, error)

	// Len returns the number of stored keys, counting entries that have
	// expired but not yet been reclaimed.
	Len(ctx context.Context) (int, error)

	// Close releases store resources.
	Close() error
}
