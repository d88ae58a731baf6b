package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Runner executes read-only SQL against one dataset. Implementations acquire a
// connection per call and release it before returning.
type Runner interface {
	Dialect() Dialect
	Run(ctx context.Context, sqlText string) (Result, error)
}

type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

// NewResult requires unique column names and rows of exactly len(columns)
// values.
func NewResult(columns []string, rows [][]any) (Result, error) {
	seen := make(map[string]struct{}, len(columns))
	for _, column := range columns {
		if _, ok := seen[column]; ok {
			return Result{}, fmt.Errorf("duplicate column %q", column)
		}
		seen[column] = struct{}{}
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return Result{}, fmt.Errorf("row %d has %d values, want %d", i, len(row), len(columns))
		}
	}
	if rows == nil {
		rows = [][]any{}
	}
	return Result{Columns: columns, Rows: rows}, nil
}

func (r Result) Len() int {
	return len(r.Rows)
}

func (r Result) ColumnIndex(name string) int {
	for i, column := range r.Columns {
		if column == name {
			return i
		}
	}
	return -1
}

// Value returns the value of the named column in row i, or nil when the column
// does not exist.
func (r Result) Value(row int, column string) any {
	index := r.ColumnIndex(column)
	if index < 0 || row < 0 || row >= len(r.Rows) {
		return nil
	}
	return r.Rows[row][index]
}

func (r Result) Records() []Record {
	records := make([]Record, 0, len(r.Rows))
	for _, row := range r.Rows {
		records = append(records, Record{Columns: r.Columns, Values: row})
	}
	return records
}

// Equal reports whether both results have the same shape and the same values.
// Column names are not compared; callers that care check them separately.
func (r Result) Equal(other Result) bool {
	if len(r.Columns) != len(other.Columns) || len(r.Rows) != len(other.Rows) {
		return false
	}
	for i := range r.Rows {
		for j := range r.Rows[i] {
			if !ValuesEqual(r.Rows[i][j], other.Rows[i][j]) {
				return false
			}
		}
	}
	return true
}

// Record is one row that keeps its column order when encoded as JSON.
type Record struct {
	Columns []string
	Values  []any
}

func (r Record) Get(column string) any {
	for i, name := range r.Columns {
		if name == column && i < len(r.Values) {
			return r.Values[i]
		}
	}
	return nil
}

func (r Record) MarshalJSON() ([]byte, error) {
	buf := bytes.NewBufferString("{")
	for i, column := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(column)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		var value any
		if i < len(r.Values) {
			value = r.Values[i]
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode column %q: %w", column, err)
		}
		buf.Write(encoded)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FirstColumnSet runs sqlText and returns the distinct values of its first
// column.
func FirstColumnSet(ctx context.Context, runner Runner, sqlText string) (ValueSet, error) {
	result, err := runner.Run(ctx, sqlText)
	if err != nil {
		return ValueSet{}, err
	}
	set := NewValueSet()
	if len(result.Columns) == 0 {
		return set, nil
	}
	for _, row := range result.Rows {
		set.Add(row[0])
	}
	return set, nil
}
