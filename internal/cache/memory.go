package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	storedAt  time.Time
	expiresAt time.Time
}

// MemoryStore is an in-process store. Expiry is lazy: an entry past its
// TTL is removed when a lookup touches it; there is no background
// sweep, so Len may count expired entries until they are read or
// overwritten.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	maxEntries int
	now        func() time.Time
}

// MemoryStoreOption is a functional option for the memory store.
type MemoryStoreOption func(*MemoryStore)

// WithMaxEntries caps the number of stored entries. Zero means
// unbounded.
func WithMaxEntries(n int) MemoryStoreOption {
	return func(m *MemoryStore) {
		m.maxEntries = n
	}
}

// WithStoreClock overrides the time source. Used in tests.
func WithStoreClock(now func() time.Time) MemoryStoreOption {
	return func(m *MemoryStore) {
		m.now = now
	}
}

// NewMemoryStore creates an in-process store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	m := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Get returns the value and its age, removing the entry when expired.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.entries[key]
	if !exists {
		return nil, 0, ErrCacheMiss
	}

	now := m.now()
	if !now.Before(entry.expiresAt) {
		delete(m.entries, key)
		return nil, 0, ErrCacheMiss
	}

	return entry.value, now.Sub(entry.storedAt), nil
}

// Set stores the value, evicting to stay within the entry cap.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	if m.maxEntries > 0 {
		if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxEntries {
			m.evictLocked(now)
		}
	}

	m.entries[key] = &memoryEntry{
		value:     value,
		storedAt:  now,
		expiresAt: now.Add(ttl),
	}
	return nil
}

// Delete removes a single key.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// DeletePrefix removes every key with the given prefix.
func (m *MemoryStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

// DeleteContaining removes every key containing the given substring.
func (m *MemoryStore) DeleteContaining(_ context.Context, substr string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key := range m.entries {
		if strings.Contains(key, substr) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Clear removes all keys.
func (m *MemoryStore) Clear(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := len(m.entries)
	m.entries = make(map[string]*memoryEntry)
	return removed, nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryStore) Len(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}

// evictLocked frees one slot: expired entries go first, otherwise an
// arbitrary entry is dropped. Must be called with the lock held.
func (m *MemoryStore) evictLocked(now time.Time) {
	for key, entry := range m.entries {
		if !now.Before(entry.expiresAt) {
			delete(m.entries, key)
			return
		}
	}
	for key := range m.entries {
		delete(m.entries, key)
		return
	}
}
