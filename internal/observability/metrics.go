package observability

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomePassed    = "passed"
	OutcomeFailed    = "failed"
	OutcomeEscalated = "escalated"
	OutcomeAborted   = "aborted"
)

var (
	checksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenbox_checks_total",
			Help: "Total number of evaluated expectations by kind, severity and outcome.",
		},
		[]string{"kind", "severity", "outcome"},
	)
	checkDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "greenbox_check_duration_seconds",
			Help:    "Expectation evaluation latency, including the dataset query.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"kind"},
	)
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenbox_runs_total",
			Help: "Total number of suite runs by label and outcome.",
		},
		[]string{"label", "outcome"},
	)
	lastRunFailures = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "greenbox_last_run_escalated_failures",
			Help: "Number of raise_error failures in the latest run.",
		},
		[]string{"label"},
	)
	lastRunTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "greenbox_last_run_timestamp_seconds",
			Help: "Unix time the latest run finished.",
		},
		[]string{"label"},
	)
)

func init() {
	prometheus.MustRegister(
		checksTotal,
		checkDurationSeconds,
		runsTotal,
		lastRunFailures,
		lastRunTimestamp,
	)
}

func ObserveCheck(kind, severity string, passed bool, elapsed time.Duration) {
	outcome := OutcomeFailed
	if passed {
		outcome = OutcomePassed
	}
	checksTotal.WithLabelValues(kind, severity, outcome).Inc()
	checkDurationSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func ObserveRun(label, outcome string, escalated int, finishedAt time.Time) {
	if escalated < 0 {
		escalated = 0
	}
	runsTotal.WithLabelValues(label, outcome).Inc()
	lastRunFailures.WithLabelValues(label).Set(float64(escalated))
	lastRunTimestamp.WithLabelValues(label).Set(float64(finishedAt.Unix()))
}

// WriteTextfile dumps the default registry in the node exporter textfile
// format. The file is replaced atomically.
func WriteTextfile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("metrics textfile path is required")
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
