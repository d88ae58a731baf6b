package query

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNewResultRejectsDuplicateColumns(t *testing.T) {
	_, err := NewResult([]string{"a", "a"}, nil)
	if err == nil {
		t.Fatal("expected duplicate column error")
	}
}

func TestNewResultRejectsRaggedRows(t *testing.T) {
	_, err := NewResult([]string{"a", "b"}, [][]any{{1, 2}, {3}})
	if err == nil {
		t.Fatal("expected row width error")
	}
	if !strings.Contains(err.Error(), "row 1") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRecordMarshalKeepsColumnOrder(t *testing.T) {
	record := Record{Columns: []string{"zeta", "alpha"}, Values: []any{int64(1), "x"}}
	raw, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(raw) != `{"zeta":1,"alpha":"x"}` {
		t.Fatalf("json = %s", raw)
	}
}

func TestResultEqualComparesNumbersByValue(t *testing.T) {
	left := Result{Columns: []string{"n"}, Rows: [][]any{{int64(9)}}}
	right := Result{Columns: []string{"count"}, Rows: [][]any{{float64(9)}}}
	if !left.Equal(right) {
		t.Fatal("expected 9 and 9.0 to compare equal")
	}
	if left.Equal(Result{Columns: []string{"n"}, Rows: [][]any{{"9"}}}) {
		t.Fatal("number and text must not compare equal")
	}
	if left.Equal(Result{Columns: []string{"n", "m"}, Rows: [][]any{{int64(9), nil}}}) {
		t.Fatal("different shapes must not compare equal")
	}
}

func TestFirstColumnSetProjectsAndDeduplicates(t *testing.T) {
	runner := &staticRunner{result: Result{
		Columns: []string{"name", "other"},
		Rows:    [][]any{{"b", 1}, {"a", 2}, {"b", 3}},
	}}
	set, err := FirstColumnSet(context.Background(), runner, "SELECT name, other FROM t")
	if err != nil {
		t.Fatalf("FirstColumnSet() error = %v", err)
	}
	if !set.Equal(NewStringSet("a", "b")) {
		t.Fatalf("set = %s", set)
	}
}

func TestFirstColumnSetPropagatesRunnerError(t *testing.T) {
	boom := errors.New("boom")
	_, err := FirstColumnSet(context.Background(), &staticRunner{err: boom}, "SELECT 1")
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
}

type staticRunner struct {
	result Result
	err    error
}

func (s *staticRunner) Dialect() Dialect { return SQLiteDialect{} }

func (s *staticRunner) Run(context.Context, string) (Result, error) {
	return s.result, s.err
}
