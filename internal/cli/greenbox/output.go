package greenbox

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/digital-land/green-box-data-quality/internal/expectation"
	"github.com/digital-land/green-box-data-quality/internal/results"
	"github.com/digital-land/green-box-data-quality/internal/suite"
)

type runSummaryOutput struct {
	RunID             string    `json:"run_id"`
	Label             string    `json:"run_label"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	Total             int       `json:"total"`
	Passed            int       `json:"passed"`
	Failed            int       `json:"failed"`
	Warnings          int       `json:"warnings"`
	EscalatedFailures int       `json:"escalated_failures"`
	ResultsLog        string    `json:"results_log,omitempty"`
}

type responsesOutput struct {
	Responses []expectation.Response `json:"responses"`
	Total     int                    `json:"total"`
	Passed    int                    `json:"passed"`
	Warnings  int                    `json:"warnings"`
	Escalated int                    `json:"escalated_failures"`
}

func writeSummary(w io.Writer, format string, summary suite.Summary, logPath string) error {
	out := runSummaryOutput{
		RunID:             summary.RunID,
		Label:             summary.Label,
		StartedAt:         summary.StartedAt,
		FinishedAt:        summary.FinishedAt,
		Total:             summary.Total,
		Passed:            summary.Passed,
		Failed:            summary.Failed,
		Warnings:          summary.Warnings,
		EscalatedFailures: summary.EscalatedFailures,
		ResultsLog:        logPath,
	}
	if format == "json" {
		return writeJSON(w, out)
	}
	for _, response := range summary.Responses {
		if !response.Result {
			writeResponseLine(w, response)
		}
	}
	_, _ = fmt.Fprintf(w, "run %s (%s): %d checks, %d passed, %d warnings, %d escalated\n",
		out.RunID, out.Label, out.Total, out.Passed, out.Warnings, out.EscalatedFailures)
	if logPath != "" {
		_, _ = fmt.Fprintf(w, "results: %s\n", logPath)
	}
	return nil
}

func writeResponses(w io.Writer, format string, responses []expectation.Response, tally results.Tally) error {
	if format == "json" {
		return writeJSON(w, responsesOutput{
			Responses: responses,
			Total:     tally.Total,
			Passed:    tally.Passed,
			Warnings:  tally.Warnings,
			Escalated: tally.Escalated,
		})
	}
	for _, response := range responses {
		writeResponseLine(w, response)
	}
	_, _ = fmt.Fprintf(w, "%d responses, %d passed, %d warnings, %d escalated\n",
		tally.Total, tally.Passed, tally.Warnings, tally.Escalated)
	return nil
}

func writeResponseLine(w io.Writer, response expectation.Response) {
	status := "PASS"
	if !response.Result {
		status = "FAIL"
	}
	_, _ = fmt.Fprintf(w, "%s %-11s %s: %s\n", status, response.Severity, response.Name, response.Message)
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(value); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
