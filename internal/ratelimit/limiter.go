// Package ratelimit provides per-subject admission control for the
// gateway request pipeline.
package ratelimit

import (
	"time"

	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

// Scope names used for headers, errors and metrics.
const (
	ScopeIP   = "ip"
	ScopeUser = "user"
)

// Result is the outcome of one admission decision. Remaining is the
// capacity left in the window after this request was counted (or would
// have been, for rejections).
type Result struct {
	Allowed    bool
	Scope      string
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits or rejects a single request for one subject. A
// subject is an opaque key such as a client IP or a user identifier.
type Limiter interface {
	// Allow counts the request against the subject's window when it is
	// admitted. Rejected requests are never counted.
	Allow(subject string) Result

	// Subjects returns the number of tracked subjects.
	Subjects() int
}

// NewLimiter builds a limiter for one scope from the configured
// algorithm. The sliding window is the default.
func NewLimiter(algorithm string, scope string, cfg config.LimitScope, opts ...SlidingWindowOption) Limiter {
	if algorithm == config.RateLimitTokenBucket {
		return NewTokenBucket(scope, cfg)
	}
	return NewSlidingWindow(scope, cfg, opts...)
}

// Err converts a rejecting result into a RateLimitError. It returns
// nil for allowed results.
func (r Result) Err() error {
	if r.Allowed {
		return nil
	}
	return &util.RateLimitError{
		Scope:      r.Scope,
		Limit:      r.Limit,
		Remaining:  r.Remaining,
		RetryAfter: r.RetryAfter,
	}
}
