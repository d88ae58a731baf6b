package expectation

import (
	"context"
	"fmt"

	"github.com/digital-land/green-box-data-quality/internal/query"
)

// RowCountRange passes when min <= COUNT(*) <= max.
type RowCountRange struct {
	Table string `json:"table" yaml:"table"`
	Min   int64  `json:"min" yaml:"min"`
	Max   int64  `json:"max" yaml:"max"`
}

type RowCountDetails struct {
	Table       string `json:"table"`
	CountedRows int64  `json:"counted_rows"`
	MinExpected int64  `json:"min_expected"`
	MaxExpected int64  `json:"max_expected"`
}

func (e RowCountRange) Kind() Kind { return KindRowCountRange }

func (e RowCountRange) Validate() error {
	if err := requireName(e.Table, "table"); err != nil {
		return err
	}
	if e.Min > e.Max {
		return configErrorf("min %d is greater than max %d", e.Min, e.Max)
	}
	return nil
}

func (e RowCountRange) Evaluate(ctx context.Context, runner query.Runner) (Verdict, error) {
	sqlText := fmt.Sprintf("SELECT COUNT(*) AS row_count FROM %s", e.Table)
	result, err := runQuery(ctx, runner, e.Kind(), sqlText)
	if err != nil {
		return Verdict{}, err
	}
	row, err := singleRow(result, e.Kind(), sqlText)
	if err != nil {
		return Verdict{}, err
	}
	counted, err := query.AsInt64(row[0])
	if err != nil {
		return Verdict{}, &QueryError{Kind: e.Kind(), SQL: sqlText, Err: err}
	}

	if e.Min <= counted && counted <= e.Max {
		return pass(), nil
	}
	return fail(RowCountDetails{Table: e.Table, CountedRows: counted, MinExpected: e.Min, MaxExpected: e.Max},
		"row count not in the expected range for table '%s', see details", e.Table), nil
}

// GroupedRowCountRange checks how many rows carry each listed value of Field.
// Both bounds are exclusive: a value is in range only when min < found < max.
// Listed values that have no rows at all are not reported.
type GroupedRowCountRange struct {
	Table  string       `json:"table" yaml:"table"`
	Field  string       `json:"field" yaml:"field"`
	Ranges []CountRange `json:"ranges" yaml:"ranges"`
}

type CountRange struct {
	Value any   `json:"value" yaml:"value"`
	Min   int64 `json:"min" yaml:"min"`
	Max   int64 `json:"max" yaml:"max"`
}

type GroupedCountViolation struct {
	LookupValue any   `json:"lookup_value"`
	MinRowCount int64 `json:"min_row_count"`
	MaxRowCount int64 `json:"max_row_count"`
	RowsFound   int64 `json:"rows_found"`
}

func (e GroupedRowCountRange) Kind() Kind { return KindGroupedRowCountRange }

func (e GroupedRowCountRange) Validate() error {
	if err := requireName(e.Table, "table"); err != nil {
		return err
	}
	if err := requireName(e.Field, "field"); err != nil {
		return err
	}
	if len(e.Ranges) == 0 {
		return configErrorf("ranges must not be empty")
	}
	seen := map[string]struct{}{}
	for i, r := range e.Ranges {
		if r.Min > r.Max {
			return configErrorf("ranges[%d]: min %d is greater than max %d", i, r.Min, r.Max)
		}
		key := query.ValueKey(r.Value)
		if _, ok := seen[key]; ok {
			return configErrorf("ranges[%d]: value %v listed twice", i, r.Value)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func (e GroupedRowCountRange) Evaluate(ctx context.Context, runner query.Runner) (Verdict, error) {
	sqlText := fmt.Sprintf("SELECT %s AS lookup_value, COUNT(*) AS rows_found FROM %s GROUP BY %s", e.Field, e.Table, e.Field)
	result, err := runQuery(ctx, runner, e.Kind(), sqlText)
	if err != nil {
		return Verdict{}, err
	}

	found := make(map[string]int64, result.Len())
	for i := range result.Rows {
		count, err := query.AsInt64(result.Value(i, "rows_found"))
		if err != nil {
			return Verdict{}, &QueryError{Kind: e.Kind(), SQL: sqlText, Err: err}
		}
		found[query.ValueKey(result.Value(i, "lookup_value"))] = count
	}

	violations := make([]GroupedCountViolation, 0)
	for _, r := range e.Ranges {
		count, ok := found[query.ValueKey(r.Value)]
		if !ok {
			continue
		}
		if count >= r.Max || count <= r.Min {
			violations = append(violations, GroupedCountViolation{
				LookupValue: query.NormalizeValue(r.Value),
				MinRowCount: r.Min,
				MaxRowCount: r.Max,
				RowsFound:   count,
			})
		}
	}

	if len(violations) == 0 {
		return pass(), nil
	}
	return fail(violations,
		"table '%s': one or more counts per lookup_value not in expected range, see details", e.Table), nil
}
