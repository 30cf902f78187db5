// Package health tracks backend endpoint liveness for the gateway.
package health

import (
	"sync"
	"time"

	"github.com/vyrodovalexey/edgegw/internal/observability"
)

// DefaultFailureThreshold is the number of consecutive failed checks
// after which an endpoint is marked unhealthy. Recovery requires a
// single successful check.
const DefaultFailureThreshold = 3

// Record is the liveness state of a single endpoint. Records are
// created lazily on first reference and persist for the process
// lifetime.
type Record struct {
	Endpoint            string     `json:"endpoint"`
	Healthy             bool       `json:"healthy"`
	LastCheckedAt       time.Time  `json:"lastCheckedAt"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
}

// Registry maintains per-endpoint health records. Endpoints never
// checked are treated as healthy (optimistic default) so that new
// endpoints receive traffic before their first probe completes.
type Registry struct {
	mu        sync.RWMutex
	records   map[string]*Record
	threshold int
	logger    observability.Logger
}

// RegistryOption is a functional option for configuring the registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger for the registry.
func WithRegistryLogger(logger observability.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithFailureThreshold sets the consecutive-failure threshold.
func WithFailureThreshold(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.threshold = n
		}
	}
}

// NewRegistry creates a new health registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		records:   make(map[string]*Record),
		threshold: DefaultFailureThreshold,
		logger:    observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// RecordResult records the outcome of a health check for an endpoint.
// A success resets the failure counter and marks the endpoint healthy
// immediately. A failure increments the counter and marks the endpoint
// unhealthy only once the counter reaches the threshold; earlier
// failures leave the endpoint usable.
func (r *Registry) RecordResult(endpoint string, success bool) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.getOrCreateLocked(endpoint)
	rec.LastCheckedAt = now

	if success {
		rec.ConsecutiveFailures = 0
		if !rec.Healthy {
			r.logger.Info("endpoint recovered",
				observability.String("endpoint", endpoint),
			)
			GetHealthMetrics().RecordTransition(endpoint, true)
		}
		rec.Healthy = true
		GetHealthMetrics().SetStatus(endpoint, true)
		GetHealthMetrics().SetConsecutiveFailures(endpoint, 0)
		return
	}

	rec.ConsecutiveFailures++
	rec.LastFailureAt = &now
	GetHealthMetrics().SetConsecutiveFailures(endpoint, rec.ConsecutiveFailures)

	if rec.ConsecutiveFailures >= r.threshold && rec.Healthy {
		r.logger.Warn("endpoint became unhealthy",
			observability.String("endpoint", endpoint),
			observability.Int("consecutiveFailures", rec.ConsecutiveFailures),
		)
		rec.Healthy = false
		GetHealthMetrics().RecordTransition(endpoint, false)
		GetHealthMetrics().SetStatus(endpoint, false)
	}
}

// SetOverride forces an endpoint's health state, bypassing the failure
// counter. It takes effect immediately.
func (r *Registry) SetOverride(endpoint string, healthy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.getOrCreateLocked(endpoint)
	rec.LastCheckedAt = time.Now()
	if healthy {
		rec.ConsecutiveFailures = 0
	}
	if rec.Healthy != healthy {
		r.logger.Info("endpoint health overridden",
			observability.String("endpoint", endpoint),
			observability.Bool("healthy", healthy),
		)
		GetHealthMetrics().RecordTransition(endpoint, healthy)
	}
	rec.Healthy = healthy
	GetHealthMetrics().SetStatus(endpoint, healthy)
}

// IsHealthy reports whether an endpoint is currently considered
// healthy. Unknown endpoints are healthy by default.
func (r *Registry) IsHealthy(endpoint string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.records[endpoint]
	if !exists {
		return true
	}
	return rec.Healthy
}

// FilterHealthy returns the subset of endpoints currently marked
// healthy, preserving order.
func (r *Registry) FilterHealthy(endpoints []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	healthy := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		rec, exists := r.records[ep]
		if !exists || rec.Healthy {
			healthy = append(healthy, ep)
		}
	}
	return healthy
}

// Record returns a copy of the record for an endpoint and whether one
// exists.
func (r *Registry) Record(endpoint string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.records[endpoint]
	if !exists {
		return Record{}, false
	}
	return *rec, true
}

// Records returns a snapshot of all health records.
func (r *Registry) Records() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, *rec)
	}
	return records
}

// getOrCreateLocked returns the record for an endpoint, creating it with
// the optimistic healthy default. Must be called with the lock held.
func (r *Registry) getOrCreateLocked(endpoint string) *Record {
	rec, exists := r.records[endpoint]
	if !exists {
		rec = &Record{
			Endpoint: endpoint,
			Healthy:  true,
		}
		r.records[endpoint] = rec
	}
	return rec
}
