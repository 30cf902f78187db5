package ratelimit

import (
	"sync"
	"time"

	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/observability"
)

// SlidingWindow admits a request when the subject has fewer than Limit
// admitted timestamps within the trailing window. Each subject keeps
// its admitted timestamps; expired ones are pruned on access, so a
// subject's memory is bounded by its limit. Rejected requests are not
// recorded and do not extend the window.
type SlidingWindow struct {
	mu       sync.Mutex
	scope    string
	limit    int
	window   time.Duration
	subjects map[string][]time.Time
	now      func() time.Time
	logger   observability.Logger
}

// SlidingWindowOption is a functional option for the sliding window.
type SlidingWindowOption func(*SlidingWindow)

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) SlidingWindowOption {
	return func(s *SlidingWindow) {
		s.now = now
	}
}

// WithLimiterLogger sets the logger for the limiter.
func WithLimiterLogger(logger observability.Logger) SlidingWindowOption {
	return func(s *SlidingWindow) {
		s.logger = logger
	}
}

// NewSlidingWindow creates a sliding-window limiter for one scope.
func NewSlidingWindow(scope string, cfg config.LimitScope, opts ...SlidingWindowOption) *SlidingWindow {
	s := &SlidingWindow{
		scope:    scope,
		limit:    cfg.Limit,
		window:   cfg.Window.Duration(),
		subjects: make(map[string][]time.Time),
		now:      time.Now,
		logger:   observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Allow decides admission for one request. The prune, count, decide and
// append steps run in a single critical section, so concurrent requests
// for the same subject never over-admit.
func (s *SlidingWindow) Allow(subject string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-s.window)

	window := s.subjects[subject]
	window = pruneExpired(window, cutoff)

	if len(window) >= s.limit {
		// Write back the pruned slice; the rejected request itself is
		// not appended.
		s.subjects[subject] = window
		retryAfter := window[0].Sub(cutoff)
		GetRateLimitMetrics().RecordDecision(s.scope, false)
		s.logger.Debug("rate limit exceeded",
			observability.String("scope", s.scope),
			observability.String("subject", subject),
			observability.Int("limit", s.limit),
		)
		return Result{
			Allowed:    false,
			Scope:      s.scope,
			Limit:      s.limit,
			Remaining:  0,
			RetryAfter: retryAfter,
		}
	}

	window = append(window, now)
	s.subjects[subject] = window

	GetRateLimitMetrics().RecordDecision(s.scope, true)
	return Result{
		Allowed:   true,
		Scope:     s.scope,
		Limit:     s.limit,
		Remaining: s.limit - len(window),
	}
}

// Subjects returns the number of tracked subjects. Subject entries are
// never removed on the request path; use StartSweeper to reclaim idle
// subjects.
func (s *SlidingWindow) Subjects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subjects)
}

// StartSweeper launches a background loop that removes subjects whose
// windows are fully expired. It stops when stopCh is closed. The sweep
// interval doubles as the idle grace period.
func (s *SlidingWindow) StartSweeper(interval time.Duration, stopCh <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-stopCh:
				return
			}
		}
	}()
}

func (s *SlidingWindow) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.window)
	removed := 0
	for subject, window := range s.subjects {
		if len(pruneExpired(window, cutoff)) == 0 {
			delete(s.subjects, subject)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("swept idle rate-limit subjects",
			observability.String("scope", s.scope),
			observability.Int("removed", removed),
		)
	}
	GetRateLimitMetrics().SetSubjects(s.scope, len(s.subjects))
}

// pruneExpired drops timestamps at or before the cutoff. Timestamps are
// appended in order, so the first retained index bounds the scan.
func pruneExpired(window []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(window) && !window[i].After(cutoff) {
		i++
	}
	return window[i:]
}
