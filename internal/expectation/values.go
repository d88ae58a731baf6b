package expectation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/digital-land/green-box-data-quality/internal/query"
)

// ValueSetMembership checks the distinct values of one field. By default only
// unexpected values fail; RequireFullCoverage also fails on expected values
// that never occur.
type ValueSetMembership struct {
	Table               string `json:"table" yaml:"table"`
	Field               string `json:"field" yaml:"field"`
	Values              []any  `json:"values" yaml:"values"`
	RequireFullCoverage bool   `json:"require_full_coverage" yaml:"require_full_coverage"`
}

type ValueSetDetails struct {
	Table          string         `json:"table"`
	ExpectedValues query.ValueSet `json:"expected_values"`
	FoundValues    query.ValueSet `json:"found_values"`
}

func (e ValueSetMembership) Kind() Kind { return KindValueSetMembership }

func (e ValueSetMembership) Validate() error {
	if err := requireName(e.Table, "table"); err != nil {
		return err
	}
	return requireName(e.Field, "field")
}

func (e ValueSetMembership) Evaluate(ctx context.Context, runner query.Runner) (Verdict, error) {
	sqlText := fmt.Sprintf("SELECT %s FROM %s GROUP BY 1", e.Field, e.Table)
	found, err := runFirstColumnSet(ctx, runner, e.Kind(), sqlText)
	if err != nil {
		return Verdict{}, err
	}

	expected := query.NewValueSet(e.Values...)
	passed := found.SubsetOf(expected)
	if e.RequireFullCoverage {
		passed = found.Equal(expected)
	}
	if passed {
		return pass(), nil
	}
	return fail(ValueSetDetails{Table: e.Table, ExpectedValues: expected, FoundValues: found},
		"values for field '%s' on table '%s' do not fit expected set criteria, see details", e.Field, e.Table), nil
}

// FieldUniqueness fails when a combination of Fields occurs in more than one
// row.
type FieldUniqueness struct {
	Table  string   `json:"table" yaml:"table"`
	Fields []string `json:"fields" yaml:"fields"`
}

type DuplicateDetails struct {
	DuplicatesFound []query.Record `json:"duplicates_found"`
}

func (e FieldUniqueness) Kind() Kind { return KindFieldUniqueness }

func (e FieldUniqueness) Validate() error {
	if err := requireName(e.Table, "table"); err != nil {
		return err
	}
	return requireNames(e.Fields, "fields")
}

func (e FieldUniqueness) Evaluate(ctx context.Context, runner query.Runner) (Verdict, error) {
	fields := selectList(e.Fields)
	sqlText := fmt.Sprintf("SELECT %s, COUNT(*) AS duplicate_count FROM %s GROUP BY %s HAVING COUNT(*) > 1", fields, e.Table, fields)
	result, err := runQuery(ctx, runner, e.Kind(), sqlText)
	if err != nil {
		return Verdict{}, err
	}
	if result.Len() == 0 {
		return pass(), nil
	}
	return fail(DuplicateDetails{DuplicatesFound: result.Records()},
		"duplicate values for the combined fields '%s' on table '%s', see details", strings.Join(e.Fields, ","), e.Table), nil
}

// ScalarFieldRange fails on rows whose Field is below Min or above Max.
// Rows with a NULL field are not compared. RefFields identify offending rows
// and are required.
type ScalarFieldRange struct {
	Table     string   `json:"table" yaml:"table"`
	Field     string   `json:"field" yaml:"field"`
	Min       float64  `json:"min" yaml:"min"`
	Max       float64  `json:"max" yaml:"max"`
	RefFields []string `json:"ref_fields" yaml:"ref_fields"`
}

type OutOfRangeDetails struct {
	RecordsWithValueOutOfRange []query.Record `json:"records_with_value_out_of_range"`
}

func (e ScalarFieldRange) Kind() Kind { return KindScalarFieldRange }

func (e ScalarFieldRange) Validate() error {
	if err := requireName(e.Table, "table"); err != nil {
		return err
	}
	if err := requireName(e.Field, "field"); err != nil {
		return err
	}
	if e.Min > e.Max {
		return configErrorf("min %v is greater than max %v", e.Min, e.Max)
	}
	return requireNames(e.RefFields, "ref_fields")
}

func (e ScalarFieldRange) Evaluate(ctx context.Context, runner query.Runner) (Verdict, error) {
	sqlText := fmt.Sprintf("SELECT %s FROM %s WHERE %s < %s OR %s > %s",
		selectList(e.RefFields, e.Field), e.Table,
		e.Field, formatNumber(e.Min), e.Field, formatNumber(e.Max))
	result, err := runQuery(ctx, runner, e.Kind(), sqlText)
	if err != nil {
		return Verdict{}, err
	}
	if result.Len() == 0 {
		return pass(), nil
	}
	return fail(OutOfRangeDetails{RecordsWithValueOutOfRange: result.Records()},
		"found values out of the expected range for field '%s' on table '%s', see details", e.Field, e.Table), nil
}

func formatNumber(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
