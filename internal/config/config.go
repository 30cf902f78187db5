// Package config defines the gateway configuration model and loading.
package config

import "time"

// Load balancer algorithm names.
const (
	BalancerRoundRobin = "round_robin"
	BalancerWeighted   = "weighted_random"
	BalancerLeastConn  = "least_conn"
)

// Cache store types.
const (
	CacheTypeMemory = "memory"
	CacheTypeRedis  = "redis"
)

// Rate limit algorithm names.
const (
	RateLimitSlidingWindow = "sliding_window"
	RateLimitTokenBucket   = "token_bucket"
)

// Health check defaults.
const (
	DefaultHealthCheckPath     = "/health"
	DefaultHealthCheckInterval = 10 * time.Second
	DefaultHealthCheckTimeout  = 5 * time.Second
	DefaultFailureThreshold    = 3
)

// GatewayConfig is the top-level gateway configuration.
type GatewayConfig struct {
	Listen      string                `yaml:"listen"`
	AdminListen string                `yaml:"adminListen"`
	Metrics     *MetricsConfig        `yaml:"metrics,omitempty"`
	Logging     *LoggingConfig        `yaml:"logging,omitempty"`
	Routes      []Route               `yaml:"routes"`
	RateLimit   *RateLimitConfig      `yaml:"rateLimit,omitempty"`
	Cache       *CacheConfig          `yaml:"cache,omitempty"`
	HealthCheck *HealthCheckConfig    `yaml:"healthCheck,omitempty"`
	Breaker     *CircuitBreakerConfig `yaml:"circuitBreaker,omitempty"`
}

// MetricsConfig configures the Prometheus metrics listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Route maps a path prefix to an ordered list of backend endpoints.
// Endpoint identifiers are host:port strings. Routes are matched in
// configuration order; the first prefix that matches the request path
// wins.
type Route struct {
	Prefix    string         `yaml:"prefix" json:"prefix"`
	Endpoints []string       `yaml:"endpoints" json:"endpoints"`
	Algorithm string         `yaml:"algorithm,omitempty" json:"algorithm,omitempty"`
	Weights   map[string]int `yaml:"weights,omitempty" json:"weights,omitempty"`
	Timeout   Duration       `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// RateLimitConfig configures per-subject admission control. The IP and
// user scopes are evaluated independently; a request must pass both.
type RateLimitConfig struct {
	Enabled    bool       `yaml:"enabled"`
	Algorithm  string     `yaml:"algorithm,omitempty"`
	IP         LimitScope `yaml:"ip"`
	User       LimitScope `yaml:"user"`
	UserHeader string     `yaml:"userHeader,omitempty"`
}

// LimitScope is the limit and window for one rate-limit scope.
type LimitScope struct {
	Limit  int      `yaml:"limit"`
	Window Duration `yaml:"window"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Type       string        `yaml:"type,omitempty"`
	DefaultTTL Duration      `yaml:"defaultTTL,omitempty"`
	MaxEntries int           `yaml:"maxEntries,omitempty"`
	Prefixes   []CachePrefix `yaml:"prefixes,omitempty"`
	Redis      *RedisConfig  `yaml:"redis,omitempty"`
}

// CachePrefix marks a path prefix as cache-eligible with an optional
// TTL override. TTL lookup uses the longest configured prefix match.
type CachePrefix struct {
	Prefix string   `yaml:"prefix"`
	TTL    Duration `yaml:"ttl,omitempty"`
}

// RedisConfig configures the Redis cache store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// HealthCheckConfig configures active endpoint probing.
type HealthCheckConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Path             string   `yaml:"path,omitempty"`
	Interval         Duration `yaml:"interval,omitempty"`
	Timeout          Duration `yaml:"timeout,omitempty"`
	FailureThreshold int      `yaml:"failureThreshold,omitempty"`
}

// CircuitBreakerConfig configures the per-endpoint transport breaker.
type CircuitBreakerConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Threshold int      `yaml:"threshold,omitempty"`
	Timeout   Duration `yaml:"timeout,omitempty"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *GatewayConfig {
	return &GatewayConfig{
		Listen:      ":8080",
		AdminListen: ":9090",
		Metrics: &MetricsConfig{
			Enabled: true,
			Listen:  ":9100",
			Path:    "/metrics",
		},
		Logging: &LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		HealthCheck: &HealthCheckConfig{
			Enabled:          true,
			Path:             DefaultHealthCheckPath,
			Interval:         Duration(DefaultHealthCheckInterval),
			Timeout:          Duration(DefaultHealthCheckTimeout),
			FailureThreshold: DefaultFailureThreshold,
		},
	}
}
