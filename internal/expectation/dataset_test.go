package expectation

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/digital-land/green-box-data-quality/internal/query"
	"github.com/digital-land/green-box-data-quality/internal/query/duckdb"
	"github.com/digital-land/green-box-data-quality/internal/query/sqlrunner"
)

// newSQLiteDataset writes a dataset file and returns a runner over it.
func newSQLiteDataset(t *testing.T, statements ...string) *sqlrunner.Runner {
	t.Helper()
	runner, err := sqlrunner.New(sqlrunner.Config{Driver: "sqlite", DSN: seedSQLiteFile(t, statements...)})
	if err != nil {
		t.Fatalf("sqlrunner.New() error = %v", err)
	}
	return runner
}

// newSpatialiteDataset is newSQLiteDataset with mod_spatialite loaded. It
// skips the test when the extension is not installed.
func newSpatialiteDataset(t *testing.T, statements ...string) *sqlrunner.Runner {
	t.Helper()
	runner, err := sqlrunner.New(sqlrunner.Config{
		Driver:     "sqlite",
		DSN:        seedSQLiteFile(t, statements...),
		Extensions: []string{"mod_spatialite"},
	})
	if err != nil {
		t.Fatalf("sqlrunner.New() error = %v", err)
	}
	if _, err := runner.Run(context.Background(), "SELECT spatialite_version()"); err != nil {
		t.Skipf("mod_spatialite not available: %v", err)
	}
	return runner
}

func seedSQLiteFile(t *testing.T, statements ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dataset.sqlite3")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()
	for _, statement := range statements {
		if _, err := db.Exec(statement); err != nil {
			t.Fatalf("Exec(%q) error = %v", statement, err)
		}
	}
	return path
}

// newDuckDBDataset returns an in-memory DuckDB runner that recreates the
// tables before every query. With extensions it skips the test when they
// cannot be installed.
func newDuckDBDataset(t *testing.T, extensions []string, statements ...string) *duckdb.Runner {
	t.Helper()
	runner, err := duckdb.NewRunner(duckdb.Config{Extensions: extensions, Setup: statements})
	if err != nil {
		t.Fatalf("duckdb.NewRunner() error = %v", err)
	}
	t.Cleanup(func() { _ = runner.Close() })
	if len(extensions) > 0 {
		if _, err := runner.Run(context.Background(), "SELECT 1"); err != nil {
			t.Skipf("duckdb extensions %v not available: %v", extensions, err)
		}
	}
	return runner
}

func evaluate(t *testing.T, runner query.Runner, expectation Expectation) Verdict {
	t.Helper()
	if err := expectation.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	verdict, err := expectation.Evaluate(context.Background(), runner)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	return verdict
}

// scriptedRunner answers queries from a list of results and records the SQL.
type scriptedRunner struct {
	dialect query.Dialect
	results []query.Result
	err     error
	queries []string
}

func (s *scriptedRunner) Dialect() query.Dialect {
	if s.dialect == nil {
		return query.SQLiteDialect{}
	}
	return s.dialect
}

func (s *scriptedRunner) Run(_ context.Context, sqlText string) (query.Result, error) {
	s.queries = append(s.queries, sqlText)
	if s.err != nil {
		return query.Result{}, s.err
	}
	if len(s.results) == 0 {
		return query.NewResult(nil, nil)
	}
	result := s.results[0]
	s.results = s.results[1:]
	return result, nil
}

func mustResult(t *testing.T, columns []string, rows ...[]any) query.Result {
	t.Helper()
	result, err := query.NewResult(columns, rows)
	if err != nil {
		t.Fatalf("NewResult() error = %v", err)
	}
	return result
}

func repeatInsert(table, value string, n int) string {
	values := make([]string, n)
	for i := range values {
		values[i] = "(" + value + ")"
	}
	return "INSERT INTO " + table + " VALUES " + strings.Join(values, ", ")
}
