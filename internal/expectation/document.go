package expectation

import (
	"context"
	"fmt"
	"strings"

	"github.com/digital-land/green-box-data-quality/internal/query"
)

// DocumentKeyMembership fails on rows whose JSON document in Field holds a
// key outside Keys, or whose document cannot be read.
type DocumentKeyMembership struct {
	Table     string   `json:"table" yaml:"table"`
	Field     string   `json:"field" yaml:"field"`
	Keys      []string `json:"keys" yaml:"keys"`
	RefFields []string `json:"ref_fields" yaml:"ref_fields"`
}

type NonExpectedKeyDetails struct {
	RecordsWithNonExpectedKeys []query.Record `json:"records_with_non_expected_keys"`
}

func (e DocumentKeyMembership) Kind() Kind { return KindDocumentKeyMembership }

func (e DocumentKeyMembership) Validate() error {
	if err := requireName(e.Table, "table"); err != nil {
		return err
	}
	if err := requireName(e.Field, "field"); err != nil {
		return err
	}
	if err := requireNames(e.Keys, "keys"); err != nil {
		return err
	}
	return requireNames(e.RefFields, "ref_fields")
}

func (e DocumentKeyMembership) Evaluate(ctx context.Context, runner query.Runner) (Verdict, error) {
	dialect := runner.Dialect()
	residual := dialect.ResidualKeysExpr(e.Field, e.Keys)
	sqlText := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		selectList(e.RefFields, residual+" AS residual_keys"), e.Table, dialect.ResidualViolation(residual))
	result, err := runQuery(ctx, runner, e.Kind(), sqlText)
	if err != nil {
		return Verdict{}, err
	}
	if result.Len() == 0 {
		return pass(), nil
	}
	return fail(NonExpectedKeyDetails{RecordsWithNonExpectedKeys: result.Records()},
		"found non-expected json keys in the field '%s' on table '%s', see details", e.Field, e.Table), nil
}

// DocumentValueMembership fails on rows where the value stored at Key of the
// JSON document in Field is missing or outside Values.
type DocumentValueMembership struct {
	Table     string   `json:"table" yaml:"table"`
	Field     string   `json:"field" yaml:"field"`
	Key       string   `json:"key" yaml:"key"`
	Values    []any    `json:"values" yaml:"values"`
	RefFields []string `json:"ref_fields" yaml:"ref_fields"`
}

type NonExpectedValueDetails struct {
	NonExpectedValues []query.Record `json:"non_expected_values"`
}

func (e DocumentValueMembership) Kind() Kind { return KindDocumentValueMembership }

func (e DocumentValueMembership) Validate() error {
	if err := requireName(e.Table, "table"); err != nil {
		return err
	}
	if err := requireName(e.Field, "field"); err != nil {
		return err
	}
	if err := requireName(e.Key, "key"); err != nil {
		return err
	}
	if len(e.Values) == 0 {
		return configErrorf("values must not be empty")
	}
	for i, value := range e.Values {
		if value == nil {
			return configErrorf("values[%d] is null", i)
		}
	}
	return requireNames(e.RefFields, "ref_fields")
}

func (e DocumentValueMembership) Evaluate(ctx context.Context, runner query.Runner) (Verdict, error) {
	dialect := runner.Dialect()
	extracted := dialect.ExtractKeyExpr(e.Field, e.Key)
	literals := make([]string, 0, len(e.Values))
	for _, value := range e.Values {
		literals = append(literals, dialect.ExtractedLiteral(value))
	}
	sqlText := fmt.Sprintf("SELECT %s FROM %s WHERE (%s NOT IN (%s)) OR (%s IS NULL)",
		selectList(e.RefFields, extracted+" AS value_found"), e.Table,
		extracted, strings.Join(literals, ", "), extracted)
	result, err := runQuery(ctx, runner, e.Kind(), sqlText)
	if err != nil {
		return Verdict{}, err
	}
	if result.Len() == 0 {
		return pass(), nil
	}
	return fail(NonExpectedValueDetails{NonExpectedValues: result.Records()},
		"found non-expected values for key '%s' in field '%s' on table '%s', see details", e.Key, e.Field, e.Table), nil
}
