package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketMetrics records write-operation activity for the marketplace node:
// request counts per operation and outcome, optimistic-concurrency retries,
// and handler latency.
type MarketMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	conflicts *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

var (
	marketMetricsOnce sync.Once
	marketRegistry    *MarketMetrics
)

// Metrics returns the lazily-initialised marketplace metrics registry.
func Metrics() *MarketMetrics {
	marketMetricsOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fiatmarket",
				Subsystem: "node",
				Name:      "requests_total",
				Help:      "Total marketplace operations segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fiatmarket",
				Subsystem: "node",
				Name:      "errors_total",
				Help:      "Total failed operations segmented by operation and error kind.",
			}, []string{"op", "kind"}),
			conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fiatmarket",
				Subsystem: "node",
				Name:      "conflict_retries_total",
				Help:      "Count of optimistic-concurrency retries per operation.",
			}, []string{"op"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "fiatmarket",
				Subsystem: "node",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for marketplace operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
		}
		prometheus.MustRegister(
			marketRegistry.requests,
			marketRegistry.errors,
			marketRegistry.conflicts,
			marketRegistry.latency,
		)
	})
	return marketRegistry
}

// ObserveOp records one completed operation.
func (m *MarketMetrics) ObserveOp(op, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// ObserveError records a failed operation by taxonomy kind.
func (m *MarketMetrics) ObserveError(op, kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(op, kind).Inc()
}

// ObserveConflictRetry records one optimistic-concurrency retry.
func (m *MarketMetrics) ObserveConflictRetry(op string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(op).Inc()
}
