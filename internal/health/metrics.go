package health

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HealthMetrics holds Prometheus metrics for health checking.
type HealthMetrics struct {
	status              *prometheus.GaugeVec
	consecutiveFailures *prometheus.GaugeVec
	transitionsTotal    *prometheus.CounterVec
	probeDuration       *prometheus.HistogramVec
}

var (
	healthMetricsInstance *HealthMetrics
	healthMetricsOnce     sync.Once
)

// GetHealthMetrics returns the singleton health metrics instance.
func GetHealthMetrics() *HealthMetrics {
	healthMetricsOnce.Do(func() {
		healthMetricsInstance = newHealthMetrics()
	})
	return healthMetricsInstance
}

// MustRegister registers all health metric collectors with the given
// Prometheus registry so they appear on the gateway's metrics endpoint.
func (m *HealthMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.status,
		m.consecutiveFailures,
		m.transitionsTotal,
		m.probeDuration,
	)
}

// SetStatus records the current health status of an endpoint
// (1=healthy, 0=unhealthy).
func (m *HealthMetrics) SetStatus(endpoint string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	m.status.WithLabelValues(endpoint).Set(v)
}

// SetConsecutiveFailures records the consecutive-failure count.
func (m *HealthMetrics) SetConsecutiveFailures(endpoint string, n int) {
	m.consecutiveFailures.WithLabelValues(endpoint).Set(float64(n))
}

// RecordTransition records a health state transition.
func (m *HealthMetrics) RecordTransition(endpoint string, toHealthy bool) {
	to := "unhealthy"
	if toHealthy {
		to = "healthy"
	}
	m.transitionsTotal.WithLabelValues(endpoint, to).Inc()
}

// RecordProbe records the duration and outcome of a probe.
func (m *HealthMetrics) RecordProbe(endpoint, outcome string, d time.Duration) {
	m.probeDuration.WithLabelValues(endpoint, outcome).Observe(d.Seconds())
}

func newHealthMetrics() *HealthMetrics {
	return &HealthMetrics{
		status: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Subsystem: "health",
				Name:      "endpoint_status",
				Help:      "Current endpoint health status (1=healthy, 0=unhealthy)",
			},
			[]string{"endpoint"},
		),
		consecutiveFailures: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Subsystem: "health",
				Name:      "consecutive_failures",
				Help:      "Consecutive failed probes per endpoint",
			},
			[]string{"endpoint"},
		),
		transitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "health",
				Name:      "transitions_total",
				Help:      "Total health state transitions",
			},
			[]string{"endpoint", "to"},
		),
		probeDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gateway",
				Subsystem: "health",
				Name:      "probe_duration_seconds",
				Help:      "Duration of health probes",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"endpoint", "outcome"},
		),
	}
}
