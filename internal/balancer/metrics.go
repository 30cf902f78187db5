package balancer

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BalancerMetrics holds Prometheus metrics for load balancing.
type BalancerMetrics struct {
	selectionsTotal   *prometheus.CounterVec
	activeConnections *prometheus.GaugeVec
}

var (
	balancerMetricsInstance *BalancerMetrics
	balancerMetricsOnce     sync.Once
)

// GetBalancerMetrics returns the singleton balancer metrics instance.
func GetBalancerMetrics() *BalancerMetrics {
	balancerMetricsOnce.Do(func() {
		balancerMetricsInstance = newBalancerMetrics()
	})
	return balancerMetricsInstance
}

// MustRegister registers all balancer metric collectors with the given
// Prometheus registry.
func (m *BalancerMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.selectionsTotal,
		m.activeConnections,
	)
}

// RecordSelection records one balancer selection.
func (m *BalancerMetrics) RecordSelection(route, algorithm string) {
	m.selectionsTotal.WithLabelValues(route, algorithm).Inc()
}

// SetActiveConnections records the active-connection count for an
// endpoint on a route.
func (m *BalancerMetrics) SetActiveConnections(route, endpoint string, n int64) {
	m.activeConnections.WithLabelValues(route, endpoint).Set(float64(n))
}

func newBalancerMetrics() *BalancerMetrics {
	return &BalancerMetrics{
		selectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "balancer",
				Name:      "selections_total",
				Help:      "Total endpoint selections",
			},
			[]string{"route", "algorithm"},
		),
		activeConnections: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Subsystem: "balancer",
				Name:      "active_connections",
				Help:      "Active connections per route endpoint",
			},
			[]string{"route", "endpoint"},
		),
	}
}
