package cache

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/edgegw/internal/config"
)

func newTestResponseCache(cfg *config.CacheConfig) (*ResponseCache, *MemoryStore) {
	store := NewMemoryStore()
	return NewResponseCache(store, cfg), store
}

func TestKey_CanonicalizesQuery(t *testing.T) {
	q1, _ := url.ParseQuery("b=2&a=1")
	q2, _ := url.ParseQuery("a=1&b=2")

	assert.Equal(t, Key("GET", "/users", q1), Key("GET", "/users", q2))
	assert.NotEqual(t, Key("GET", "/users", q1), Key("HEAD", "/users", q1))
}

func TestInvalidationPrefix(t *testing.T) {
	assert.Equal(t, "/users", InvalidationPrefix("/users/42/orders"))
	assert.Equal(t, "/users", InvalidationPrefix("/users"))
	assert.Equal(t, "/", InvalidationPrefix("/"))
}

func TestResponseCache_Eligibility(t *testing.T) {
	c, _ := newTestResponseCache(&config.CacheConfig{
		Enabled:    true,
		DefaultTTL: config.Duration(time.Minute),
		Prefixes: []config.CachePrefix{
			{Prefix: "/users"},
		},
	})

	assert.True(t, c.Eligible(http.MethodGet, "/users/1"))
	assert.True(t, c.Eligible(http.MethodHead, "/users/1"))
	assert.False(t, c.Eligible(http.MethodPost, "/users/1"))
	assert.False(t, c.Eligible(http.MethodGet, "/orders/1"))
}

func TestResponseCache_TTLLongestPrefixWins(t *testing.T) {
	c, _ := newTestResponseCache(&config.CacheConfig{
		Enabled:    true,
		DefaultTTL: config.Duration(time.Minute),
		Prefixes: []config.CachePrefix{
			{Prefix: "/users", TTL: config.Duration(10 * time.Minute)},
			{Prefix: "/users/admin", TTL: config.Duration(time.Second)},
		},
	})

	assert.Equal(t, 10*time.Minute, c.TTLFor("/users/1"))
	assert.Equal(t, time.Second, c.TTLFor("/users/admin/settings"))
	assert.Equal(t, time.Minute, c.TTLFor("/orders/1"))
}

func TestResponseCache_StoreAndLookup(t *testing.T) {
	c, _ := newTestResponseCache(&config.CacheConfig{
		Enabled:    true,
		DefaultTTL: config.Duration(time.Minute),
	})
	ctx := context.Background()

	entry := &Entry{
		StatusCode: 200,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(`{"id":1}`),
	}
	c.Store(ctx, "GET", "/users/1", nil, entry)

	got, age, err := c.Lookup(ctx, "GET", "/users/1", nil)
	require.NoError(t, err)
	assert.Equal(t, 200, got.StatusCode)
	assert.Equal(t, "application/json", got.Headers.Get("Content-Type"))
	assert.Equal(t, []byte(`{"id":1}`), got.Body)
	assert.GreaterOrEqual(t, age, time.Duration(0))

	stats := c.Stats(ctx)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, 1, stats.Entries)
}

func TestResponseCache_CorruptEntryIsMiss(t *testing.T) {
	c, store := newTestResponseCache(&config.CacheConfig{
		Enabled:    true,
		DefaultTTL: config.Duration(time.Minute),
	})
	ctx := context.Background()

	key := Key("GET", "/users/1", nil)
	require.NoError(t, store.Set(ctx, key, []byte("{truncated"), time.Minute))

	_, _, err := c.Lookup(ctx, "GET", "/users/1", nil)
	assert.ErrorIs(t, err, ErrCacheMiss)

	stats := c.Stats(ctx)
	assert.Equal(t, int64(1), stats.Corrupt)
	assert.Equal(t, int64(1), stats.Misses)
	// The corrupt entry was dropped.
	assert.Equal(t, 0, stats.Entries)
}

func TestResponseCache_InvalidateWrite(t *testing.T) {
	c, _ := newTestResponseCache(&config.CacheConfig{
		Enabled:    true,
		DefaultTTL: config.Duration(time.Minute),
	})
	ctx := context.Background()

	c.Store(ctx, "GET", "/users/1", nil, &Entry{StatusCode: 200})
	c.Store(ctx, "GET", "/users/2", nil, &Entry{StatusCode: 200})
	c.Store(ctx, "GET", "/orders/1", nil, &Entry{StatusCode: 200})

	removed := c.InvalidateWrite(ctx, "/users/1")
	assert.Equal(t, 2, removed)

	_, _, err := c.Lookup(ctx, "GET", "/users/1", nil)
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, _, err = c.Lookup(ctx, "GET", "/orders/1", nil)
	assert.NoError(t, err)
}

func TestResponseCache_InvalidatePattern(t *testing.T) {
	c, _ := newTestResponseCache(&config.CacheConfig{
		Enabled:    true,
		DefaultTTL: config.Duration(time.Minute),
	})
	ctx := context.Background()

	c.Store(ctx, "GET", "/users/1", nil, &Entry{StatusCode: 200})
	c.Store(ctx, "GET", "/orders/1", nil, &Entry{StatusCode: 200})

	// Pattern is a substring match anywhere in the key.
	removed, err := c.InvalidatePattern(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	// Empty pattern clears everything.
	removed, err = c.InvalidatePattern(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestResponseCache_ZeroTTLNotStored(t *testing.T) {
	c, store := newTestResponseCache(&config.CacheConfig{Enabled: true})
	ctx := context.Background()

	c.Store(ctx, "GET", "/users/1", nil, &Entry{StatusCode: 200})

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
