package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidateConfig validates the full gateway configuration.
func ValidateConfig(cfg *GatewayConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.Listen == "" {
		return fmt.Errorf("listen address is required")
	}

	if len(cfg.Routes) == 0 {
		return fmt.Errorf("at least one route is required")
	}

	seen := make(map[string]bool, len(cfg.Routes))
	for i, route := range cfg.Routes {
		if err := ValidateRoute(route); err != nil {
			return fmt.Errorf("route %d: %w", i, err)
		}
		if seen[route.Prefix] {
			return fmt.Errorf("route %d: duplicate prefix %q", i, route.Prefix)
		}
		seen[route.Prefix] = true
	}

	if cfg.RateLimit != nil && cfg.RateLimit.Enabled {
		if err := validateRateLimit(cfg.RateLimit); err != nil {
			return err
		}
	}

	if cfg.Cache != nil && cfg.Cache.Enabled {
		if err := validateCache(cfg.Cache); err != nil {
			return err
		}
	}

	return nil
}

// ValidateRoute validates a single route definition. A route must have a
// non-empty prefix starting with "/" and at least one endpoint.
func ValidateRoute(route Route) error {
	if route.Prefix == "" {
		return fmt.Errorf("route prefix is required")
	}
	if !strings.HasPrefix(route.Prefix, "/") {
		return fmt.Errorf("route prefix %q must start with /", route.Prefix)
	}
	if len(route.Endpoints) == 0 {
		return fmt.Errorf("route %q must have at least one endpoint", route.Prefix)
	}
	for _, ep := range route.Endpoints {
		if _, _, err := net.SplitHostPort(ep); err != nil {
			return fmt.Errorf("route %q: invalid endpoint %q: %w", route.Prefix, ep, err)
		}
	}
	switch route.Algorithm {
	case "", BalancerRoundRobin, BalancerWeighted, BalancerLeastConn:
	default:
		return fmt.Errorf("route %q: unknown balancer algorithm %q", route.Prefix, route.Algorithm)
	}
	for ep, w := range route.Weights {
		if w <= 0 {
			return fmt.Errorf("route %q: weight for %q must be positive", route.Prefix, ep)
		}
	}
	return nil
}

func validateRateLimit(cfg *RateLimitConfig) error {
	switch cfg.Algorithm {
	case "", RateLimitSlidingWindow, RateLimitTokenBucket:
	default:
		return fmt.Errorf("unknown rate limit algorithm %q", cfg.Algorithm)
	}
	if cfg.IP.Limit <= 0 {
		return fmt.Errorf("rate limit ip.limit must be positive")
	}
	if cfg.IP.Window.Duration() <= 0 {
		return fmt.Errorf("rate limit ip.window must be positive")
	}
	if cfg.User.Limit > 0 && cfg.User.Window.Duration() <= 0 {
		return fmt.Errorf("rate limit user.window must be positive")
	}
	return nil
}

func validateCache(cfg *CacheConfig) error {
	switch cfg.Type {
	case "", CacheTypeMemory:
	case CacheTypeRedis:
		if cfg.Redis == nil || cfg.Redis.Addr == "" {
			return fmt.Errorf("redis cache requires redis.addr")
		}
	default:
		return fmt.Errorf("unknown cache type %q", cfg.Type)
	}
	for _, p := range cfg.Prefixes {
		if !strings.HasPrefix(p.Prefix, "/") {
			return fmt.Errorf("cache prefix %q must start with /", p.Prefix)
		}
	}
	return nil
}
