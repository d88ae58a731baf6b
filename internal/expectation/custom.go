package expectation

import (
	"context"
	"strings"

	"github.com/digital-land/green-box-data-quality/internal/query"
)

// CustomQueryEquality runs Query verbatim and compares its result with
// Expected, row by row in order.
type CustomQueryEquality struct {
	Query    string         `json:"query" yaml:"query"`
	Expected ExpectedResult `json:"expected" yaml:"expected"`
}

// ExpectedResult is a literal table. Columns are compared only when given.
type ExpectedResult struct {
	Columns []string `json:"columns,omitempty" yaml:"columns"`
	Rows    [][]any  `json:"rows" yaml:"rows"`
}

type CustomQueryDetails struct {
	Query    string         `json:"query"`
	Expected ExpectedResult `json:"expected"`
	Actual   ExpectedResult `json:"actual"`
}

func (e CustomQueryEquality) Kind() Kind { return KindCustomQueryEquality }

func (e CustomQueryEquality) Validate() error {
	if err := requireName(e.Query, "query"); err != nil {
		return err
	}
	if e.Expected.Rows == nil {
		return configErrorf("expected result is required")
	}
	for i, row := range e.Expected.Rows {
		if len(e.Expected.Columns) > 0 && len(row) != len(e.Expected.Columns) {
			return configErrorf("expected row %d has %d values, want %d", i, len(row), len(e.Expected.Columns))
		}
	}
	return nil
}

func (e CustomQueryEquality) Evaluate(ctx context.Context, runner query.Runner) (Verdict, error) {
	result, err := runQuery(ctx, runner, e.Kind(), e.Query)
	if err != nil {
		return Verdict{}, err
	}
	if e.Expected.Matches(result) {
		return pass(), nil
	}
	actual := ExpectedResult{Columns: result.Columns, Rows: result.Rows}
	return fail(CustomQueryDetails{Query: e.Query, Expected: e.Expected, Actual: actual},
		"result of custom query differs from the expected result, see details"), nil
}

func (x ExpectedResult) Matches(actual query.Result) bool {
	if len(x.Columns) > 0 && strings.Join(x.Columns, "\x00") != strings.Join(actual.Columns, "\x00") {
		return false
	}
	if len(x.Rows) != actual.Len() {
		return false
	}
	for i, row := range x.Rows {
		if len(row) != len(actual.Rows[i]) {
			return false
		}
		for j := range row {
			if !query.ValuesEqual(row[j], actual.Rows[i][j]) {
				return false
			}
		}
	}
	return true
}
