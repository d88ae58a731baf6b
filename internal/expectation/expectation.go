package expectation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/digital-land/green-box-data-quality/internal/query"
)

const SuccessMessage = "Success: data quality as expected"

// Expectation is one data-quality rule. Implementations are plain parameter
// structs; they are encoded as the response input.
type Expectation interface {
	Kind() Kind
	Validate() error
	Evaluate(ctx context.Context, runner query.Runner) (Verdict, error)
}

var (
	_ Expectation = TableSetExistence{}
	_ Expectation = ColumnSetExistence{}
	_ Expectation = RowCountRange{}
	_ Expectation = GroupedRowCountRange{}
	_ Expectation = ValueSetMembership{}
	_ Expectation = FieldUniqueness{}
	_ Expectation = GeometryValidity{}
	_ Expectation = DocumentKeyMembership{}
	_ Expectation = DocumentValueMembership{}
	_ Expectation = ScalarFieldRange{}
	_ Expectation = CustomQueryEquality{}
)

// Verdict is the outcome of evaluating an expectation. Details is nil when
// Passed is true.
type Verdict struct {
	Passed  bool
	Message string
	Details any
}

func pass() Verdict {
	return Verdict{Passed: true, Message: SuccessMessage}
}

func fail(details any, format string, args ...any) Verdict {
	return Verdict{Message: "Fail: " + fmt.Sprintf(format, args...), Details: details}
}

// RunContext carries what responses need to know about the surrounding run.
type RunContext struct {
	RunID string
	Label string
	Clock func() time.Time
}

func (rc RunContext) Now() time.Time {
	if rc.Clock == nil {
		return time.Now().UTC()
	}
	return rc.Clock().UTC()
}

type Response struct {
	RunID      string    `json:"run_id"`
	RunLabel   string    `json:"run_label"`
	Name       string    `json:"name"`
	Kind       Kind      `json:"kind"`
	Input      any       `json:"input"`
	Result     bool      `json:"result"`
	Message    string    `json:"message"`
	Details    any       `json:"details"`
	Severity   Severity  `json:"severity"`
	ExecutedAt time.Time `json:"executed_at"`
}

// Escalates reports whether this response counts towards run failure.
func (r Response) Escalates() bool {
	return !r.Result && r.Severity.Escalates()
}

type Check struct {
	Name        string
	Severity    Severity
	Expectation Expectation
}

func (c Check) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return configErrorf("rule name is required")
	}
	if !c.Severity.Valid() {
		return &ConfigError{Rule: c.Name, Reason: fmt.Sprintf("invalid severity %q", c.Severity)}
	}
	if c.Expectation == nil {
		return &ConfigError{Rule: c.Name, Reason: "expectation is required"}
	}
	if err := c.Expectation.Validate(); err != nil {
		var configErr *ConfigError
		if errors.As(err, &configErr) {
			return &ConfigError{Rule: c.Name, Reason: configErr.Reason}
		}
		return &ConfigError{Rule: c.Name, Reason: err.Error()}
	}
	return nil
}

// Evaluate runs the expectation and builds its response. A data-quality
// violation is a response with Result false; only runner failures are errors.
func (c Check) Evaluate(ctx context.Context, runner query.Runner, rc RunContext) (Response, error) {
	verdict, err := c.Expectation.Evaluate(ctx, runner)
	if err != nil {
		var queryErr *QueryError
		if !errors.As(err, &queryErr) {
			queryErr = &QueryError{Kind: c.Expectation.Kind(), Err: err}
		}
		queryErr.Rule = c.Name
		return Response{}, queryErr
	}

	details := verdict.Details
	if verdict.Passed {
		details = nil
	}
	return Response{
		RunID:      rc.RunID,
		RunLabel:   rc.Label,
		Name:       c.Name,
		Kind:       c.Expectation.Kind(),
		Input:      c.Expectation,
		Result:     verdict.Passed,
		Message:    verdict.Message,
		Details:    details,
		Severity:   c.Severity,
		ExecutedAt: rc.Now(),
	}, nil
}
