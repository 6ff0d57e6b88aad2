package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveAnalysisIncrementsResultCounter(t *testing.T) {
	m := NewMetrics()
	m.ObserveAnalysis("ok", "dofollow", "", 500*time.Millisecond)

	got := testutil.ToFloat64(m.AnalyserResults.WithLabelValues("dofollow", ""))
	if got != 1 {
		t.Fatalf("expected 1 result recorded, got %v", got)
	}
}

func TestObserveQueueDepthSetsGauges(t *testing.T) {
	m := NewMetrics()
	m.ObserveQueueDepth(3, 1, 0)

	if got := testutil.ToFloat64(m.QueueDepth.WithLabelValues("waiting")); got != 3 {
		t.Fatalf("expected waiting=3, got %v", got)
	}
	if got := testutil.ToFloat64(m.QueueDepth.WithLabelValues("leased")); got != 1 {
		t.Fatalf("expected leased=1, got %v", got)
	}
}

func TestObserveSheetRunSkipsRowCounterWhenZero(t *testing.T) {
	m := NewMetrics()
	m.ObserveSheetRun("checked", 0)

	if got := testutil.ToFloat64(m.SheetRuns.WithLabelValues("checked")); got != 1 {
		t.Fatalf("expected 1 run recorded, got %v", got)
	}
	if got := testutil.ToFloat64(m.SheetRowsAudited); got != 0 {
		t.Fatalf("expected 0 rows audited, got %v", got)
	}
}
