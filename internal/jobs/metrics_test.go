package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	if err := m.Track("rebuild").End(nil); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	boom := errors.New("boom")
	if err := m.Track("rebuild").End(boom); !errors.Is(err, boom) {
		t.Fatalf("expected error passthrough, got %v", err)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("rebuild", "success")); got != 1 {
		t.Fatalf("success runs = %v", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("rebuild")); got != 1 {
		t.Fatalf("failures = %v", got)
	}
}

func TestAddRecomputedDays(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddRecomputedDays("rebuild", 3)
	m.AddRecomputedDays("rebuild", 0)
	if got := testutil.ToFloat64(m.days.WithLabelValues("rebuild")); got != 3 {
		t.Fatalf("days = %v", got)
	}

	var nilMetrics *Metrics
	nilMetrics.AddRecomputedDays("rebuild", 1)
	if err := nilMetrics.Track("rebuild").End(nil); err != nil {
		t.Fatalf("nil tracker: %v", err)
	}
}
