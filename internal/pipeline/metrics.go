package pipeline

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics holds Prometheus metrics for request dispatch.
type PipelineMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	upstreamTotal   *prometheus.CounterVec
}

var (
	pipelineMetricsInstance *PipelineMetrics
	pipelineMetricsOnce     sync.Once
)

// GetPipelineMetrics returns the singleton pipeline metrics instance.
func GetPipelineMetrics() *PipelineMetrics {
	pipelineMetricsOnce.Do(func() {
		pipelineMetricsInstance = newPipelineMetrics()
	})
	return pipelineMetricsInstance
}

// MustRegister registers all pipeline metric collectors with the given
// Prometheus registry.
func (m *PipelineMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.upstreamTotal,
	)
}

// RecordRequest records one dispatched request.
func (m *PipelineMetrics) RecordRequest(method string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	m.requestsTotal.WithLabelValues(method, code).Inc()
	m.requestDuration.WithLabelValues(method, code).Observe(duration.Seconds())
}

// RecordUpstream records one backend response.
func (m *PipelineMetrics) RecordUpstream(route, endpoint string, status int) {
	m.upstreamTotal.WithLabelValues(route, endpoint, strconv.Itoa(status)).Inc()
}

func newPipelineMetrics() *PipelineMetrics {
	return &PipelineMetrics{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "pipeline",
				Name:      "requests_total",
				Help:      "Total requests dispatched",
			},
			[]string{"method", "status"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gateway",
				Subsystem: "pipeline",
				Name:      "request_duration_seconds",
				Help:      "Request dispatch latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "status"},
		),
		upstreamTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "pipeline",
				Name:      "upstream_responses_total",
				Help:      "Backend responses by endpoint and status",
			},
			[]string{"route", "endpoint", "status"},
		),
	}
}
