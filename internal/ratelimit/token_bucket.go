package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/edgegw/internal/config"
)

// TokenBucket admits requests from a per-subject token bucket that
// refills at limit/window and bursts up to the full limit. Unlike the
// sliding window it forgives traffic gradually instead of all at once
// at the window edge.
type TokenBucket struct {
	mu       sync.Mutex
	scope    string
	limit    int
	window   time.Duration
	subjects map[string]*rate.Limiter
}

// NewTokenBucket creates a token-bucket limiter for one scope.
func NewTokenBucket(scope string, cfg config.LimitScope) *TokenBucket {
	return &TokenBucket{
		scope:    scope,
		limit:    cfg.Limit,
		window:   cfg.Window.Duration(),
		subjects: make(map[string]*rate.Limiter),
	}
}

// Allow decides admission for one request.
func (t *TokenBucket) Allow(subject string) Result {
	t.mu.Lock()
	limiter, exists := t.subjects[subject]
	if !exists {
		limiter = rate.NewLimiter(rate.Every(t.window/time.Duration(t.limit)), t.limit)
		t.subjects[subject] = limiter
	}
	t.mu.Unlock()

	if !limiter.Allow() {
		GetRateLimitMetrics().RecordDecision(t.scope, false)
		return Result{
			Allowed:    false,
			Scope:      t.scope,
			Limit:      t.limit,
			Remaining:  0,
			RetryAfter: t.window / time.Duration(t.limit),
		}
	}

	remaining := int(limiter.Tokens())
	if remaining < 0 {
		remaining = 0
	}

	GetRateLimitMetrics().RecordDecision(t.scope, true)
	return Result{
		Allowed:   true,
		Scope:     t.scope,
		Limit:     t.limit,
		Remaining: remaining,
	}
}

// Subjects returns the number of tracked subjects.
func (t *TokenBucket) Subjects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subjects)
}
