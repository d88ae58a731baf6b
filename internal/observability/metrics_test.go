package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCheckCountsByOutcome(t *testing.T) {
	passed := checksTotal.WithLabelValues("row_count_range", "warn", OutcomePassed)
	failed := checksTotal.WithLabelValues("row_count_range", "warn", OutcomeFailed)
	beforePassed := testutil.ToFloat64(passed)
	beforeFailed := testutil.ToFloat64(failed)

	ObserveCheck("row_count_range", "warn", true, 10*time.Millisecond)
	ObserveCheck("row_count_range", "warn", false, 20*time.Millisecond)
	ObserveCheck("row_count_range", "warn", false, 30*time.Millisecond)

	if got := testutil.ToFloat64(passed) - beforePassed; got != 1 {
		t.Fatalf("passed delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(failed) - beforeFailed; got != 2 {
		t.Fatalf("failed delta = %v, want 2", got)
	}
}

func TestObserveRunSetsLastRunGauges(t *testing.T) {
	finished := time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)
	ObserveRun("metrics-test", OutcomeEscalated, 3, finished)

	if got := testutil.ToFloat64(lastRunFailures.WithLabelValues("metrics-test")); got != 3 {
		t.Fatalf("escalated failures = %v", got)
	}
	if got := testutil.ToFloat64(lastRunTimestamp.WithLabelValues("metrics-test")); got != float64(finished.Unix()) {
		t.Fatalf("timestamp = %v", got)
	}
	if got := testutil.ToFloat64(runsTotal.WithLabelValues("metrics-test", OutcomeEscalated)); got != 1 {
		t.Fatalf("runs = %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	ObserveRun("textfile-test", OutcomePassed, 0, time.Now())
	path := filepath.Join(t.TempDir(), "greenbox.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(raw), `greenbox_runs_total{label="textfile-test",outcome="passed"} 1`) {
		t.Fatalf("textfile missing run counter:\n%s", raw)
	}
	if err := WriteTextfile(" "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
