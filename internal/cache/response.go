package cache

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/observability"
)

// Entry is a cached upstream response.
type Entry struct {
	StatusCode int         `json:"statusCode"`
	Headers    http.Header `json:"headers"`
	Body       []byte      `json:"body"`
}

// ResponseCache decides which responses to cache, for how long, and
// when writes invalidate them. Only GET and HEAD dispatches are
// eligible. TTL lookup uses the longest configured prefix; paths under
// no configured prefix fall back to the default TTL.
type ResponseCache struct {
	store      Store
	defaultTTL time.Duration
	prefixes   []config.CachePrefix
	logger     observability.Logger

	hits     atomic.Int64
	misses   atomic.Int64
	corrupts atomic.Int64
}

// ResponseCacheOption is a functional option for the response cache.
type ResponseCacheOption func(*ResponseCache)

// WithCacheLogger sets the logger for the response cache.
func WithCacheLogger(logger observability.Logger) ResponseCacheOption {
	return func(c *ResponseCache) {
		c.logger = logger
	}
}

// NewResponseCache creates a response cache over the given store.
func NewResponseCache(store Store, cfg *config.CacheConfig, opts ...ResponseCacheOption) *ResponseCache {
	c := &ResponseCache{
		store:      store,
		defaultTTL: cfg.DefaultTTL.Duration(),
		prefixes:   cfg.Prefixes,
		logger:     observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Eligible reports whether a request may be served from or admitted to
// the cache. With no prefixes configured every read path is eligible.
func (c *ResponseCache) Eligible(method, path string) bool {
	if method != http.MethodGet && method != http.MethodHead {
		return false
	}
	if len(c.prefixes) == 0 {
		return true
	}
	for _, p := range c.prefixes {
		if strings.HasPrefix(path, p.Prefix) {
			return true
		}
	}
	return false
}

// TTLFor returns the TTL for a path: the longest configured prefix
// match wins, otherwise the default TTL.
func (c *ResponseCache) TTLFor(path string) time.Duration {
	best := -1
	ttl := c.defaultTTL
	for _, p := range c.prefixes {
		if strings.HasPrefix(path, p.Prefix) && len(p.Prefix) > best {
			best = len(p.Prefix)
			if p.TTL > 0 {
				ttl = p.TTL.Duration()
			}
		}
	}
	return ttl
}

// Lookup returns the cached entry and its age. A decode failure is
// logged and reported as a miss; the corrupt entry is dropped.
func (c *ResponseCache) Lookup(ctx context.Context, method, path string, query url.Values) (*Entry, time.Duration, error) {
	key := Key(method, path, query)

	data, age, err := c.store.Get(ctx, key)
	if err == ErrCacheCorrupt {
		c.dropCorrupt(ctx, key, err)
		return nil, 0, ErrCacheMiss
	}
	if err != nil {
		if err != ErrCacheMiss {
			c.logger.Warn("cache lookup failed", observability.Error(err))
			err = ErrCacheMiss
		}
		c.misses.Add(1)
		GetCacheMetrics().RecordLookup(false)
		return nil, 0, err
	}

	var entry Entry
	if jsonErr := json.Unmarshal(data, &entry); jsonErr != nil {
		c.dropCorrupt(ctx, key, jsonErr)
		return nil, 0, ErrCacheMiss
	}

	c.hits.Add(1)
	GetCacheMetrics().RecordLookup(true)
	return &entry, age, nil
}

// Store admits a response with the path's TTL. Failures are logged and
// swallowed; a broken cache never fails the request.
func (c *ResponseCache) Store(ctx context.Context, method, path string, query url.Values, entry *Entry) {
	ttl := c.TTLFor(path)
	if ttl <= 0 {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("cache encode failed", observability.Error(err))
		return
	}

	if err := c.store.Set(ctx, Key(method, path, query), data, ttl); err != nil {
		c.logger.Warn("cache store failed", observability.Error(err))
	}
}

// InvalidateWrite removes all entries sharing the write path's first
// segment and returns the number removed.
func (c *ResponseCache) InvalidateWrite(ctx context.Context, path string) int {
	prefix := InvalidationPrefix(path)
	removed, err := c.store.DeletePrefix(ctx, prefix)
	if err != nil {
		c.logger.Warn("cache invalidation failed",
			observability.String("prefix", prefix),
			observability.Error(err),
		)
		return 0
	}
	if removed > 0 {
		GetCacheMetrics().RecordInvalidations(removed)
		c.logger.Debug("cache invalidated",
			observability.String("prefix", prefix),
			observability.Int("removed", removed),
		)
	}
	return removed
}

// InvalidatePattern removes entries whose key contains the pattern, or
// everything when the pattern is empty.
func (c *ResponseCache) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	if pattern == "" {
		return c.store.Clear(ctx)
	}
	return c.store.DeleteContaining(ctx, pattern)
}

// Stats is a snapshot of cache effectiveness counters.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Corrupt int64 `json:"corrupt"`
	Entries int   `json:"entries"`
}

// Stats returns the current counters and stored-entry count.
func (c *ResponseCache) Stats(ctx context.Context) Stats {
	entries, err := c.store.Len(ctx)
	if err != nil {
		c.logger.Warn("cache size lookup failed", observability.Error(err))
	}
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Corrupt: c.corrupts.Load(),
		Entries: entries,
	}
}

// Close releases the backing store.
func (c *ResponseCache) Close() error {
	return c.store.Close()
}

func (c *ResponseCache) dropCorrupt(ctx context.Context, key string, err error) {
	c.corrupts.Add(1)
	c.misses.Add(1)
	GetCacheMetrics().RecordCorrupt()
	GetCacheMetrics().RecordLookup(false)
	c.logger.Warn("corrupt cache entry treated as miss",
		observability.String("key", key),
		observability.Error(err),
	)
	if delErr := c.store.Delete(ctx, key); delErr != nil {
		c.logger.Warn("corrupt cache entry delete failed", observability.Error(delErr))
	}
}
