package suite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/digital-land/green-box-data-quality/internal/expectation"
	"github.com/digital-land/green-box-data-quality/internal/observability"
	"github.com/digital-land/green-box-data-quality/internal/query"
	"github.com/digital-land/green-box-data-quality/internal/results"
	"github.com/digital-land/green-box-data-quality/internal/rules"
)

var (
	ErrRunInProgress = errors.New("suite run already in progress")
	ErrRunEscalation = errors.New("run escalation failure")
)

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateFinished State = "finished"
)

// EscalationError is returned once at the end of a run in which at least one
// raise_error expectation failed. The failing responses are already persisted.
type EscalationError struct {
	RunID    string
	Label    string
	Failures int
}

func (e *EscalationError) Error() string {
	return fmt.Sprintf("%s: run %s (%s) had %d raise_error failure(s)", ErrRunEscalation, e.RunID, e.Label, e.Failures)
}

func (e *EscalationError) Unwrap() error {
	return ErrRunEscalation
}

type Summary struct {
	RunID             string
	Label             string
	StartedAt         time.Time
	FinishedAt        time.Time
	Total             int
	Passed            int
	Failed            int
	Warnings          int
	EscalatedFailures int
	Responses         []expectation.Response
}

func (s *Summary) record(response expectation.Response) {
	s.Responses = append(s.Responses, response)
	s.Total++
	switch {
	case response.Result:
		s.Passed++
	case response.Escalates():
		s.Failed++
		s.EscalatedFailures++
	default:
		s.Failed++
		s.Warnings++
	}
}

// Runner evaluates rule definitions against one dataset, one check at a time.
// A Runner may be reused for several runs but never for two at once.
type Runner struct {
	Dataset  query.Runner
	Sink     results.Sink
	Logger   *slog.Logger
	Clock    func() time.Time
	NewRunID func() string

	mu    sync.Mutex
	state State
}

func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == "" {
		return StateIdle
	}
	return r.state
}

// Run resolves every definition, then evaluates the checks in order. A
// ConfigError stops the run before any query is issued; a QueryError or a sink
// failure stops it where it happened. Data-quality failures never stop a run.
func (r *Runner) Run(ctx context.Context, label string, defs []rules.Definition) (Summary, error) {
	if err := r.enter(); err != nil {
		return Summary{}, err
	}
	defer r.leave()

	logger := r.logger()
	label = strings.TrimSpace(label)
	if label == "" {
		return Summary{}, &expectation.ConfigError{Reason: "run label is required"}
	}
	if r.Dataset == nil {
		return Summary{}, &expectation.ConfigError{Reason: "dataset runner is required"}
	}

	checks, err := rules.Resolve(defs)
	if err != nil {
		logger.Error("rule resolution failed", slog.String("run_label", label), slog.Any("error", err))
		return Summary{}, err
	}

	rc := expectation.RunContext{RunID: r.newRunID(), Label: label, Clock: r.Clock}
	summary := Summary{
		RunID:     rc.RunID,
		Label:     label,
		StartedAt: rc.Now(),
		Responses: make([]expectation.Response, 0, len(checks)),
	}
	logger = logger.With(slog.String("run_id", rc.RunID), slog.String("run_label", label))
	logger.Info("run started", slog.Int("checks", len(checks)), slog.String("dialect", r.Dataset.Dialect().Name()))

	for _, check := range checks {
		if err := ctx.Err(); err != nil {
			return r.abort(logger, summary, rc, err)
		}

		started := time.Now()
		response, err := check.Evaluate(ctx, r.Dataset, rc)
		elapsed := time.Since(started)
		if err != nil {
			logger.Error("check errored",
				slog.String("rule", check.Name),
				slog.String("kind", string(check.Expectation.Kind())),
				slog.Any("error", err),
			)
			return r.abort(logger, summary, rc, err)
		}
		observability.ObserveCheck(string(response.Kind), string(response.Severity), response.Result, elapsed)
		logCheck(logger, response, elapsed)

		if r.Sink != nil {
			if err := r.Sink.Append(ctx, response); err != nil {
				return r.abort(logger, summary, rc, fmt.Errorf("persist response %q: %w", response.Name, err))
			}
		}
		summary.record(response)
	}

	summary.FinishedAt = rc.Now()
	logger.Info("run finished",
		slog.Int("total", summary.Total),
		slog.Int("passed", summary.Passed),
		slog.Int("warnings", summary.Warnings),
		slog.Int("escalated_failures", summary.EscalatedFailures),
	)
	if summary.EscalatedFailures > 0 {
		observability.ObserveRun(label, observability.OutcomeEscalated, summary.EscalatedFailures, summary.FinishedAt)
		return summary, &EscalationError{RunID: rc.RunID, Label: label, Failures: summary.EscalatedFailures}
	}
	observability.ObserveRun(label, observability.OutcomePassed, 0, summary.FinishedAt)
	return summary, nil
}

func (r *Runner) abort(logger *slog.Logger, summary Summary, rc expectation.RunContext, err error) (Summary, error) {
	summary.FinishedAt = rc.Now()
	logger.Error("run aborted", slog.Int("completed", summary.Total), slog.Any("error", err))
	observability.ObserveRun(summary.Label, observability.OutcomeAborted, summary.EscalatedFailures, summary.FinishedAt)
	return summary, err
}

func logCheck(logger *slog.Logger, response expectation.Response, elapsed time.Duration) {
	attrs := []any{
		slog.String("rule", response.Name),
		slog.String("kind", string(response.Kind)),
		slog.String("severity", string(response.Severity)),
		slog.Duration("duration", elapsed),
	}
	if response.Result {
		logger.Info("check passed", attrs...)
		return
	}
	attrs = append(attrs, slog.String("message", response.Message))
	if response.Escalates() {
		logger.Error("check failed", attrs...)
		return
	}
	logger.Warn("check failed", attrs...)
}

func (r *Runner) enter() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateRunning {
		return ErrRunInProgress
	}
	r.state = StateRunning
	return nil
}

func (r *Runner) leave() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateFinished
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}

func (r *Runner) newRunID() string {
	if r.NewRunID != nil {
		return r.NewRunID()
	}
	return uuid.NewString()
}
