package metrics

import (
	"strings"
	"testing"
)

func TestRenderIncludesFailureKinds(t *testing.T) {
	IncAnalysisFailed("RATE_LIMIT")
	IncAnalysisFailed("RATE_LIMIT")
	IncAnalysisFailed("")

	out := Render()
	for _, want := range []string{
		`analysis_failures_by_kind_total{kind="RATE_LIMIT"} 2`,
		`analysis_failures_by_kind_total{kind="UNKNOWN"} 1`,
		"# TYPE analysis_duration_ms histogram",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestHistogramBucketsAreCumulative(t *testing.T) {
	h := newHistogram([]float64{10, 100})
	h.Observe(5)
	h.Observe(50)
	h.Observe(500)

	snap := h.Snapshot()
	if snap.count != 3 || snap.sum != 555 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.counts[0] != 1 || snap.counts[1] != 1 {
		t.Fatalf("unexpected bucket counts: %v", snap.counts)
	}
}
