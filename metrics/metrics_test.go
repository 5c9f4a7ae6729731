package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordUpdate("success", "")
	m.RecordUpdate("success", "")
	m.RecordUpdate("failed", "out_of_scope")
	m.RecordCorruption(2)
	m.RecordCorruption(0)
	m.RecordBatch("dryRun")
	m.RecordMerge(time.Millisecond)

	if got := testutil.ToFloat64(m.UpdatesTotal.WithLabelValues("success", "")); got != 2 {
		t.Fatalf("expected 2 successful updates, got %v", got)
	}
	if got := testutil.ToFloat64(m.UpdatesTotal.WithLabelValues("failed", "out_of_scope")); got != 1 {
		t.Fatalf("expected 1 failed update, got %v", got)
	}
	if got := testutil.ToFloat64(m.CorruptionCleanedTotal); got != 2 {
		t.Fatalf("expected 2 cleaned corruptions, got %v", got)
	}
	if got := testutil.ToFloat64(m.BatchesTotal.WithLabelValues("dryRun")); got != 1 {
		t.Fatalf("expected 1 dry-run batch, got %v", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordUpdate("success", "")
	m.RecordMerge(time.Second)
	m.RecordCorruption(1)
	m.RecordBatch("write")
}
