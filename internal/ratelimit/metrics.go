package ratelimit

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RateLimitMetrics holds Prometheus metrics for admission control.
type RateLimitMetrics struct {
	decisionsTotal *prometheus.CounterVec
	subjects       *prometheus.GaugeVec
}

var (
	rateLimitMetricsInstance *RateLimitMetrics
	rateLimitMetricsOnce     sync.Once
)

// GetRateLimitMetrics returns the singleton rate-limit metrics instance.
func GetRateLimitMetrics() *RateLimitMetrics {
	rateLimitMetricsOnce.Do(func() {
		rateLimitMetricsInstance = newRateLimitMetrics()
	})
	return rateLimitMetricsInstance
}

// MustRegister registers all rate-limit metric collectors with the
// given Prometheus registry.
func (m *RateLimitMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.decisionsTotal,
		m.subjects,
	)
}

// RecordDecision records one admission decision.
func (m *RateLimitMetrics) RecordDecision(scope string, allowed bool) {
	decision := "rejected"
	if allowed {
		decision = "allowed"
	}
	m.decisionsTotal.WithLabelValues(scope, decision).Inc()
}

// SetSubjects records the tracked-subject count for a scope.
func (m *RateLimitMetrics) SetSubjects(scope string, n int) {
	m.subjects.WithLabelValues(scope).Set(float64(n))
}

func newRateLimitMetrics() *RateLimitMetrics {
	return &RateLimitMetrics{
		decisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "ratelimit",
				Name:      "decisions_total",
				Help:      "Total admission decisions",
			},
			[]string{"scope", "decision"},
		),
		subjects: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Subsystem: "ratelimit",
				Name:      "subjects",
				Help:      "Tracked subjects per scope",
			},
			[]string{"scope"},
		),
	}
}
