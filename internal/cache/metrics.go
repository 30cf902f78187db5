package cache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CacheMetrics holds Prometheus metrics for the response cache.
type CacheMetrics struct {
	lookupsTotal       *prometheus.CounterVec
	invalidationsTotal prometheus.Counter
	corruptTotal       prometheus.Counter
}

var (
	cacheMetricsInstance *CacheMetrics
	cacheMetricsOnce     sync.Once
)

// GetCacheMetrics returns the singleton cache metrics instance.
func GetCacheMetrics() *CacheMetrics {
	cacheMetricsOnce.Do(func() {
		cacheMetricsInstance = newCacheMetrics()
	})
	return cacheMetricsInstance
}

// MustRegister registers all cache metric collectors with the given
// Prometheus registry.
func (m *CacheMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.lookupsTotal,
		m.invalidationsTotal,
		m.corruptTotal,
	)
}

// RecordLookup records one cache lookup.
func (m *CacheMetrics) RecordLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookupsTotal.WithLabelValues(result).Inc()
}

// RecordInvalidations records removed entries from a write
// invalidation.
func (m *CacheMetrics) RecordInvalidations(n int) {
	m.invalidationsTotal.Add(float64(n))
}

// RecordCorrupt records one corrupt entry.
func (m *CacheMetrics) RecordCorrupt() {
	m.corruptTotal.Inc()
}

func newCacheMetrics() *CacheMetrics {
	return &CacheMetrics{
		lookupsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Total cache lookups",
			},
			[]string{"result"},
		),
		invalidationsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "cache",
				Name:      "invalidations_total",
				Help:      "Total entries removed by write invalidation",
			},
		),
		corruptTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "cache",
				Name:      "corrupt_entries_total",
				Help:      "Total corrupt entries treated as misses",
			},
		),
	}
}
