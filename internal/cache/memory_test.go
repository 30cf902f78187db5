package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStoreClock() *storeClock {
	return &storeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *storeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *storeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStore_HitBeforeExpiry(t *testing.T) {
	clock := newStoreClock()
	store := NewMemoryStore(WithStoreClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 5*time.Minute))

	// 1ms before the TTL boundary: still a hit.
	clock.Advance(5*time.Minute - time.Millisecond)
	value, age, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)
	assert.Equal(t, 5*time.Minute-time.Millisecond, age)
}

func TestMemoryStore_MissAtExpiry(t *testing.T) {
	clock := newStoreClock()
	store := NewMemoryStore(WithStoreClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 5*time.Minute))

	clock.Advance(5*time.Minute + time.Millisecond)
	_, _, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// The expired entry was reclaimed by the lookup.
	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMemoryStore_ExpiryIsLazy(t *testing.T) {
	clock := newStoreClock()
	store := NewMemoryStore(WithStoreClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	clock.Advance(time.Hour)

	// No lookup has touched the entry, so it still counts.
	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStore_SetResetsTTL(t *testing.T) {
	clock := newStoreClock()
	store := NewMemoryStore(WithStoreClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v1"), time.Minute))
	clock.Advance(50 * time.Second)
	require.NoError(t, store.Set(ctx, "k", []byte("v2"), time.Minute))
	clock.Advance(30 * time.Second)

	value, age, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), value)
	assert.Equal(t, 30*time.Second, age)
}

func TestMemoryStore_DeletePrefix(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "/users/1|GET", []byte("a"), time.Minute))
	require.NoError(t, store.Set(ctx, "/users/2|GET", []byte("b"), time.Minute))
	require.NoError(t, store.Set(ctx, "/orders/1|GET", []byte("c"), time.Minute))

	removed, err := store.DeletePrefix(ctx, "/users")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, _, err = store.Get(ctx, "/orders/1|GET")
	assert.NoError(t, err)
}

func TestMemoryStore_MaxEntriesEvicts(t *testing.T) {
	store := NewMemoryStore(WithMaxEntries(2))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, store.Set(ctx, "c", []byte("3"), time.Minute))

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryStore_Clear(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), time.Minute))

	removed, err := store.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, _, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
