package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/digital-land/green-box-data-quality/internal/expectation"
)

// Repository stores responses in the expectation_response table.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping results db: %w", err)
	}
	return nil
}

func (r *Repository) Append(ctx context.Context, response expectation.Response) error {
	input, err := json.Marshal(response.Input)
	if err != nil {
		return fmt.Errorf("encode input for %q: %w", response.Name, err)
	}
	var details any
	if response.Details != nil {
		raw, err := json.Marshal(response.Details)
		if err != nil {
			return fmt.Errorf("encode details for %q: %w", response.Name, err)
		}
		details = string(raw)
	}

	query := `
INSERT INTO expectation_response (run_id, run_label, name, kind, severity, result, message, input, details, executed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9::jsonb, $10)`
	if _, err := r.db.ExecContext(ctx, query,
		response.RunID,
		response.RunLabel,
		response.Name,
		string(response.Kind),
		string(response.Severity),
		response.Result,
		response.Message,
		string(input),
		details,
		response.ExecutedAt,
	); err != nil {
		return fmt.Errorf("insert expectation response %q: %w", response.Name, err)
	}
	return nil
}

// ListRun returns the responses of one run in the order they were appended.
func (r *Repository) ListRun(ctx context.Context, runID string) ([]expectation.Response, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT run_id, run_label, name, kind, severity, result, message, input, details, executed_at
FROM expectation_response
WHERE run_id = $1
ORDER BY response_id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list run responses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	responses := make([]expectation.Response, 0)
	for rows.Next() {
		var (
			response expectation.Response
			kind     string
			severity string
			input    []byte
			details  []byte
		)
		if err := rows.Scan(
			&response.RunID,
			&response.RunLabel,
			&response.Name,
			&kind,
			&severity,
			&response.Result,
			&response.Message,
			&input,
			&details,
			&response.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("scan expectation response row: %w", err)
		}
		response.Kind = expectation.Kind(kind)
		response.Severity = expectation.Severity(severity)
		if err := decodeJSON(input, &response.Input); err != nil {
			return nil, fmt.Errorf("decode input for %q: %w", response.Name, err)
		}
		if err := decodeJSON(details, &response.Details); err != nil {
			return nil, fmt.Errorf("decode details for %q: %w", response.Name, err)
		}
		response.ExecutedAt = response.ExecutedAt.UTC()
		responses = append(responses, response)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expectation response rows: %w", err)
	}
	return responses, nil
}

func decodeJSON(raw []byte, dst *any) error {
	if len(raw) == 0 {
		*dst = nil
		return nil
	}
	return json.Unmarshal(raw, dst)
}
