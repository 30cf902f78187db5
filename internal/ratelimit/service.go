package ratelimit

import (
	"net/http"

	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/observability"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

// DefaultUserHeader identifies the requesting user when no header is
// configured.
const DefaultUserHeader = "X-User-ID"

// Service evaluates the IP scope and then the user scope for each
// request. Evaluation is fail-fast: when the IP scope rejects, the user
// scope is not consulted and the request does not count against it.
type Service struct {
	ip         Limiter
	user       Limiter
	ipScope    config.LimitScope
	userScope  config.LimitScope
	userHeader string
	logger     observability.Logger
}

// ServiceOption is a functional option for the rate-limit service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger for the service.
func WithServiceLogger(logger observability.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService builds the two-scope rate-limit service from config. It
// returns nil when rate limiting is disabled; callers treat a nil
// service as pass-through.
func NewService(cfg *config.RateLimitConfig, opts ...ServiceOption) *Service {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	userHeader := cfg.UserHeader
	if userHeader == "" {
		userHeader = DefaultUserHeader
	}

	s := &Service{
		ip:         NewLimiter(cfg.Algorithm, ScopeIP, cfg.IP),
		ipScope:    cfg.IP,
		userScope:  cfg.User,
		userHeader: userHeader,
		logger:     observability.NopLogger(),
	}
	if cfg.User.Limit > 0 {
		s.user = NewLimiter(cfg.Algorithm, ScopeUser, cfg.User)
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Check admits or rejects the request. The returned result describes
// the last scope evaluated; on rejection its Error() carries the scope,
// limit and retry-after for the response headers. Requests without a
// user identity skip the user scope.
func (s *Service) Check(r *http.Request) Result {
	result := s.ip.Allow(util.ClientIP(r))
	if !result.Allowed {
		return result
	}

	user := r.Header.Get(s.userHeader)
	if user == "" || s.user == nil {
		return result
	}

	return s.user.Allow(user)
}

// ScopeStats describes one scope's configuration and tracked subjects.
type ScopeStats struct {
	Limit    int             `json:"limit"`
	Window   config.Duration `json:"window"`
	Subjects int             `json:"subjects"`
}

// Stats reports per-scope limits, windows and tracked-subject counts.
func (s *Service) Stats() map[string]ScopeStats {
	stats := map[string]ScopeStats{
		ScopeIP: {
			Limit:    s.ipScope.Limit,
			Window:   s.ipScope.Window,
			Subjects: s.ip.Subjects(),
		},
	}
	if s.user != nil {
		stats[ScopeUser] = ScopeStats{
			Limit:    s.userScope.Limit,
			Window:   s.userScope.Window,
			Subjects: s.user.Subjects(),
		}
	}
	return stats
}
