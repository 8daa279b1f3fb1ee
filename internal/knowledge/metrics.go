package knowledge

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the knowledge engine.
type Metrics struct {
	// Cache performance
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	CacheEvictionsTotal *prometheus.CounterVec
	CacheSize           prometheus.Gauge

	// Scoring
	MatchDuration prometheus.Histogram
	MatchResults  prometheus.Histogram
}

// NewMetrics creates and registers the knowledge engine metrics.
//
// Registration happens once per process; later calls return the same
// instance so that engines rebuilt on pattern reload share collectors.
//
// Metrics:
//   - recalld_knowledge_cache_hits_total
//   - recalld_knowledge_cache_misses_total
//   - recalld_knowledge_cache_evictions_total{reason}
//   - recalld_knowledge_cache_size
//   - recalld_knowledge_match_duration_seconds
//   - recalld_knowledge_match_results
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			CacheHitsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "recalld_knowledge_cache_hits_total",
					Help: "Total number of knowledge result cache hits",
				},
			),

			CacheMissesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "recalld_knowledge_cache_misses_total",
					Help: "Total number of knowledge result cache misses",
				},
			),

			CacheEvictionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "recalld_knowledge_cache_evictions_total",
					Help: "Total number of knowledge cache entries evicted",
				},
				[]string{"reason"}, // "expired" or "oldest"
			),

			CacheSize: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "recalld_knowledge_cache_size",
					Help: "Current number of entries in the knowledge result cache",
				},
			),

			MatchDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "recalld_knowledge_match_duration_seconds",
					Help:    "Duration of uncached pattern scoring passes",
					Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8), // 10us to ~160ms
				},
			),

			MatchResults: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "recalld_knowledge_match_results",
					Help:    "Number of patterns scoring above zero per uncached query",
					Buckets: prometheus.LinearBuckets(0, 5, 10),
				},
			),
		}
	})

	return globalMetrics
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit() {
	m.CacheHitsTotal.Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.CacheMissesTotal.Inc()
}

// RecordEvictions adds n evictions for reason.
func (m *Metrics) RecordEvictions(reason string, n int) {
	if n > 0 {
		m.CacheEvictionsTotal.WithLabelValues(reason).Add(float64(n))
	}
}

// SetCacheSize updates the current cache size gauge.
func (m *Metrics) SetCacheSize(size int) {
	m.CacheSize.Set(float64(size))
}

// RecordMatch records one uncached scoring pass.
func (m *Metrics) RecordMatch(durationSeconds float64, results int) {
	m.MatchDuration.Observe(durationSeconds)
	m.MatchResults.Observe(float64(results))
}
