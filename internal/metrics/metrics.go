// Package metrics exposes Prometheus instruments for the reconciliation
// engine.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	global *Metrics
	once   sync.Once
)

// Metrics holds the engine's Prometheus instruments.
type Metrics struct {
	Resolutions    *prometheus.CounterVec
	EventsSynced   *prometheus.CounterVec
	RecordsLinked  *prometheus.CounterVec
	ItemFailures   *prometheus.CounterVec
	BatchDuration  *prometheus.HistogramVec
	ReviewQueueLen prometheus.Gauge
}

// New registers the instruments with the default registry. It is safe to call
// more than once; registration happens on the first call only.
//
// Metrics:
//   - casebook_resolutions_total{outcome}
//   - casebook_events_synced_total{outcome}
//   - casebook_records_linked_total{outcome}
//   - casebook_item_failures_total{operation}
//   - casebook_batch_duration_seconds{operation}
//   - casebook_review_queue_length
func New() *Metrics {
	once.Do(func() {
		global = &Metrics{
			Resolutions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "casebook_resolutions_total",
					Help: "Name resolutions by outcome",
				},
				[]string{"outcome"},
			),
			EventsSynced: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "casebook_events_synced_total",
					Help: "Calendar events processed by outcome",
				},
				[]string{"outcome"},
			),
			RecordsLinked: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "casebook_records_linked_total",
					Help: "Record link attempts by outcome",
				},
				[]string{"outcome"},
			),
			ItemFailures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "casebook_item_failures_total",
					Help: "Batch items that failed",
				},
				[]string{"operation"},
			),
			BatchDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "casebook_batch_duration_seconds",
					Help:    "Duration of batch operations",
					Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
				},
				[]string{"operation"},
			),
			ReviewQueueLen: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "casebook_review_queue_length",
					Help: "Records waiting for manual review at the last listing",
				},
			),
		}
	})
	return global
}

// ObserveBatch records how long an operation took.
func (m *Metrics) ObserveBatch(op string, start time.Time) {
	if m == nil {
		return
	}
	m.BatchDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Resolution counts one resolver outcome.
func (m *Metrics) Resolution(outcome string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(outcome).Inc()
}

// Event counts one synchronized event.
func (m *Metrics) Event(outcome string) {
	if m == nil {
		return
	}
	m.EventsSynced.WithLabelValues(outcome).Inc()
}

// Link counts one link attempt.
func (m *Metrics) Link(outcome string) {
	if m == nil {
		return
	}
	m.RecordsLinked.WithLabelValues(outcome).Inc()
}

// Failure counts one failed item.
func (m *Metrics) Failure(op string) {
	if m == nil {
		return
	}
	m.ItemFailures.WithLabelValues(op).Inc()
}

// ReviewQueue sets the review queue gauge.
func (m *Metrics) ReviewQueue(n int) {
	if m == nil {
		return
	}
	m.ReviewQueueLen.Set(float64(n))
}
