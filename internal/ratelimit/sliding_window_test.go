package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestWindow(limit int, window time.Duration) (*SlidingWindow, *fakeClock) {
	clock := newFakeClock()
	s := NewSlidingWindow(ScopeIP, config.LimitScope{
		Limit:  limit,
		Window: config.Duration(window),
	}, WithClock(clock.Now))
	return s, clock
}

func TestSlidingWindow_AllowsUpToLimit(t *testing.T) {
	s, _ := newTestWindow(5, time.Minute)

	for i := 0; i < 5; i++ {
		result := s.Allow("10.0.0.1")
		require.True(t, result.Allowed, "request %d within the limit", i+1)
		assert.Equal(t, 5-i-1, result.Remaining)
	}

	result := s.Allow("10.0.0.1")
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.ErrorIs(t, result.Err(), util.ErrRateLimited)
}

func TestSlidingWindow_WindowElapseRestoresCapacity(t *testing.T) {
	s, clock := newTestWindow(2, time.Minute)

	require.True(t, s.Allow("10.0.0.1").Allowed)
	require.True(t, s.Allow("10.0.0.1").Allowed)
	require.False(t, s.Allow("10.0.0.1").Allowed)

	// Just inside the window: still rejected.
	clock.Advance(59 * time.Second)
	assert.False(t, s.Allow("10.0.0.1").Allowed)

	// Past the window: the old timestamps expire.
	clock.Advance(2 * time.Second)
	assert.True(t, s.Allow("10.0.0.1").Allowed)
}

func TestSlidingWindow_RejectedRequestsNotCounted(t *testing.T) {
	s, clock := newTestWindow(1, time.Minute)

	require.True(t, s.Allow("10.0.0.1").Allowed)

	// A burst of rejected requests must not extend the window.
	for i := 0; i < 10; i++ {
		clock.Advance(5 * time.Second)
		require.False(t, s.Allow("10.0.0.1").Allowed)
	}

	// 50s elapsed since the admitted request plus 11s passes the window
	// edge; capacity is back despite the rejected burst.
	clock.Advance(11 * time.Second)
	assert.True(t, s.Allow("10.0.0.1").Allowed)
}

func TestSlidingWindow_SubjectsIndependent(t *testing.T) {
	s, _ := newTestWindow(1, time.Minute)

	require.True(t, s.Allow("10.0.0.1").Allowed)
	require.False(t, s.Allow("10.0.0.1").Allowed)

	assert.True(t, s.Allow("10.0.0.2").Allowed)
	assert.Equal(t, 2, s.Subjects())
}

func TestSlidingWindow_RetryAfter(t *testing.T) {
	s, clock := newTestWindow(1, time.Minute)

	require.True(t, s.Allow("10.0.0.1").Allowed)
	clock.Advance(20 * time.Second)

	result := s.Allow("10.0.0.1")
	require.False(t, result.Allowed)
	assert.Equal(t, 40*time.Second, result.RetryAfter)
}

func TestSlidingWindow_ConcurrentAdmissionIsStrict(t *testing.T) {
	const limit = 50
	s := NewSlidingWindow(ScopeIP, config.LimitScope{
		Limit:  limit,
		Window: config.Duration(time.Minute),
	})

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Allow("10.0.0.1").Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), allowed.Load())
}

func TestSlidingWindow_SweeperRemovesIdleSubjects(t *testing.T) {
	s, clock := newTestWindow(1, time.Minute)

	require.True(t, s.Allow("10.0.0.1").Allowed)
	require.True(t, s.Allow("10.0.0.2").Allowed)
	require.Equal(t, 2, s.Subjects())

	clock.Advance(2 * time.Minute)
	s.sweep()

	assert.Equal(t, 0, s.Subjects())
}

func TestSlidingWindow_SweeperKeepsActiveSubjects(t *testing.T) {
	s, clock := newTestWindow(2, time.Minute)

	require.True(t, s.Allow("10.0.0.1").Allowed)
	clock.Advance(2 * time.Minute)
	require.True(t, s.Allow("10.0.0.2").Allowed)

	s.sweep()

	assert.Equal(t, 1, s.Subjects())
}
