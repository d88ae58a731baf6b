package expectation

import (
	"context"
	"errors"
	"testing"

	"github.com/digital-land/green-box-data-quality/internal/query"
	"github.com/digital-land/green-box-data-quality/internal/query/sqlrunner"
)

func countRunner(t *testing.T, n int64) *scriptedRunner {
	t.Helper()
	return &scriptedRunner{results: []query.Result{mustResult(t, []string{"row_count"}, []any{n})}}
}

func TestRowCountRangeBoundsAreInclusive(t *testing.T) {
	cases := []struct {
		count  int64
		passed bool
	}{
		{count: 4, passed: false},
		{count: 5, passed: true},
		{count: 7, passed: true},
		{count: 10, passed: true},
		{count: 11, passed: false},
	}
	for _, tc := range cases {
		verdict := evaluate(t, countRunner(t, tc.count), RowCountRange{Table: "entity", Min: 5, Max: 10})
		if verdict.Passed != tc.passed {
			t.Fatalf("count %d: passed = %v, want %v", tc.count, verdict.Passed, tc.passed)
		}
	}
}

func TestRowCountRangeReportsActualCount(t *testing.T) {
	runner := countRunner(t, 42)
	verdict := evaluate(t, runner, RowCountRange{Table: "entity", Min: 1, Max: 10})
	details := verdict.Details.(RowCountDetails)
	if details.CountedRows != 42 || details.MinExpected != 1 || details.MaxExpected != 10 || details.Table != "entity" {
		t.Fatalf("details = %+v", details)
	}
	if runner.queries[0] != "SELECT COUNT(*) AS row_count FROM entity" {
		t.Fatalf("sql = %q", runner.queries[0])
	}
}

func TestRowCountRangeEmptyResultIsQueryError(t *testing.T) {
	runner := &scriptedRunner{results: []query.Result{mustResult(t, []string{"row_count"})}}
	_, err := RowCountRange{Table: "entity", Min: 0, Max: 1}.Evaluate(context.Background(), runner)
	if !errors.Is(err, ErrQuery) {
		t.Fatalf("error = %v, want %v", err, ErrQuery)
	}
}

func TestRowCountRangeValidation(t *testing.T) {
	err := RowCountRange{Table: "entity", Min: 10, Max: 1}.Validate()
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("error = %v, want %v", err, ErrConfiguration)
	}
}

func nineRowsOfX(t *testing.T) *sqlrunner.Runner {
	t.Helper()
	return newSQLiteDataset(t,
		`CREATE TABLE t (field TEXT)`,
		repeatInsert("t", "'x'", 9),
		repeatInsert("t", "'y'", 2),
	)
}

// GroupedRowCountRange treats both bounds as exclusive, unlike RowCountRange.
// These cases pin that asymmetry down.
func TestGroupedRowCountRangeBoundsAreExclusive(t *testing.T) {
	dataset := nineRowsOfX(t)

	verdict := evaluate(t, dataset, GroupedRowCountRange{
		Table:  "t",
		Field:  "field",
		Ranges: []CountRange{{Value: "x", Min: 8, Max: 10}},
	})
	if !verdict.Passed {
		t.Fatalf("9 rows within (8, 10) should pass: %+v", verdict)
	}

	verdict = evaluate(t, dataset, GroupedRowCountRange{
		Table:  "t",
		Field:  "field",
		Ranges: []CountRange{{Value: "x", Min: 9, Max: 10}},
	})
	if verdict.Passed {
		t.Fatal("found == min must be a violation")
	}
	violations := verdict.Details.([]GroupedCountViolation)
	want := GroupedCountViolation{LookupValue: "x", MinRowCount: 9, MaxRowCount: 10, RowsFound: 9}
	if len(violations) != 1 || violations[0] != want {
		t.Fatalf("violations = %+v", violations)
	}

	verdict = evaluate(t, dataset, GroupedRowCountRange{
		Table:  "t",
		Field:  "field",
		Ranges: []CountRange{{Value: "x", Min: 1, Max: 9}},
	})
	if verdict.Passed {
		t.Fatal("found == max must be a violation")
	}
}

func TestGroupedRowCountRangeReportsOnlyViolatingValues(t *testing.T) {
	dataset := nineRowsOfX(t)
	verdict := evaluate(t, dataset, GroupedRowCountRange{
		Table: "t",
		Field: "field",
		Ranges: []CountRange{
			{Value: "x", Min: 8, Max: 10},
			{Value: "y", Min: 5, Max: 10},
			{Value: "z", Min: 1, Max: 3},
		},
	})
	if verdict.Passed {
		t.Fatal("expected y to violate its range")
	}
	violations := verdict.Details.([]GroupedCountViolation)
	if len(violations) != 1 || violations[0].LookupValue != "y" || violations[0].RowsFound != 2 {
		t.Fatalf("violations = %+v", violations)
	}
}

func TestGroupedRowCountRangeMatchesNumericValues(t *testing.T) {
	runner := &scriptedRunner{results: []query.Result{
		mustResult(t, []string{"lookup_value", "rows_found"}, []any{int64(42114488), int64(3)}),
	}}
	verdict := evaluate(t, runner, GroupedRowCountRange{
		Table:  "entity",
		Field:  "organisation_entity",
		Ranges: []CountRange{{Value: "42114488", Min: 5, Max: 10}},
	})
	if verdict.Passed {
		t.Fatal("expected the integer group to match the text value")
	}
}

func TestGroupedRowCountRangeValidation(t *testing.T) {
	err := GroupedRowCountRange{
		Table:  "t",
		Field:  "field",
		Ranges: []CountRange{{Value: "x", Min: 1, Max: 2}, {Value: "x", Min: 1, Max: 3}},
	}.Validate()
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("error = %v, want %v", err, ErrConfiguration)
	}
	if err := (GroupedRowCountRange{Table: "t", Field: "f"}).Validate(); err == nil {
		t.Fatal("expected error for empty ranges")
	}
}
