// Package metrics provides Prometheus metrics for the update orchestrator.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the orchestrator collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// Update metrics
	UpdatesTotal  *prometheus.CounterVec
	MergeDuration prometheus.Histogram

	// Integrity metrics
	CorruptionCleanedTotal prometheus.Counter

	// Batch metrics
	BatchesTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{}

	m.UpdatesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldmerge_updates_total",
			Help: "Total number of processed field updates",
		},
		[]string{"outcome", "code"},
	)

	m.MergeDuration = f.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fieldmerge_merge_duration_seconds",
			Help:    "Duration of single field merges in seconds",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	m.CorruptionCleanedTotal = f.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldmerge_corruption_cleaned_total",
			Help: "Total number of self-nesting corruptions removed from documents",
		},
	)

	m.BatchesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldmerge_batches_total",
			Help: "Total number of processed update batches",
		},
		[]string{"mode"},
	)

	return m
}

// RecordUpdate counts one update outcome ("success", "failed" or "skipped").
func (m *Metrics) RecordUpdate(outcome, code string) {
	if m == nil {
		return
	}
	m.UpdatesTotal.WithLabelValues(outcome, code).Inc()
}

// RecordMerge observes the duration of one merge.
func (m *Metrics) RecordMerge(d time.Duration) {
	if m == nil {
		return
	}
	m.MergeDuration.Observe(d.Seconds())
}

// RecordCorruption counts removed corruptions.
func (m *Metrics) RecordCorruption(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CorruptionCleanedTotal.Add(float64(n))
}

// RecordBatch counts one batch in the given mode ("dryRun" or "write").
func (m *Metrics) RecordBatch(mode string) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(mode).Inc()
}
