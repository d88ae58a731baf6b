package expectation

import (
	"context"

	"github.com/digital-land/green-box-data-quality/internal/query"
)

// TableSetExistence checks the tables of the dataset. Strict requires the
// exact set; otherwise extra tables are tolerated.
type TableSetExistence struct {
	Tables []string `json:"tables" yaml:"tables"`
	Strict bool     `json:"strict" yaml:"strict"`
}

type TableSetDetails struct {
	ExpectedTables query.ValueSet `json:"expected_tables"`
	FoundTables    query.ValueSet `json:"found_tables"`
}

func (e TableSetExistence) Kind() Kind { return KindTableSetExistence }

func (e TableSetExistence) Validate() error {
	return requireNames(e.Tables, "tables")
}

func (e TableSetExistence) Evaluate(ctx context.Context, runner query.Runner) (Verdict, error) {
	found, err := runFirstColumnSet(ctx, runner, e.Kind(), runner.Dialect().ListTablesSQL())
	if err != nil {
		return Verdict{}, err
	}
	expected := query.NewStringSet(e.Tables...)
	if setMatches(expected, found, e.Strict) {
		return pass(), nil
	}
	return fail(TableSetDetails{ExpectedTables: expected, FoundTables: found},
		"difference between expected tables and found tables on the db, see details"), nil
}

// ColumnSetExistence checks the column names of one table.
type ColumnSetExistence struct {
	Table   string   `json:"table" yaml:"table"`
	Columns []string `json:"columns" yaml:"columns"`
	Strict  bool     `json:"strict" yaml:"strict"`
}

type ColumnSetDetails struct {
	Table           string         `json:"table"`
	ExpectedColumns query.ValueSet `json:"expected_columns"`
	FoundColumns    query.ValueSet `json:"found_columns"`
}

func (e ColumnSetExistence) Kind() Kind { return KindColumnSetExistence }

func (e ColumnSetExistence) Validate() error {
	if err := requireName(e.Table, "table"); err != nil {
		return err
	}
	return requireNames(e.Columns, "columns")
}

func (e ColumnSetExistence) Evaluate(ctx context.Context, runner query.Runner) (Verdict, error) {
	found, err := runFirstColumnSet(ctx, runner, e.Kind(), runner.Dialect().ListColumnsSQL(e.Table))
	if err != nil {
		return Verdict{}, err
	}
	expected := query.NewStringSet(e.Columns...)
	if setMatches(expected, found, e.Strict) {
		return pass(), nil
	}
	return fail(ColumnSetDetails{Table: e.Table, ExpectedColumns: expected, FoundColumns: found},
		"difference between expected columns and found columns on table '%s', see details", e.Table), nil
}

func setMatches(expected, found query.ValueSet, strict bool) bool {
	if strict {
		return expected.Equal(found)
	}
	return expected.SubsetOf(found)
}
