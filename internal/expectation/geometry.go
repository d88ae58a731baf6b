package expectation

import (
	"context"
	"fmt"

	"github.com/digital-land/green-box-data-quality/internal/query"
)

const (
	validityInvalid     = "invalid"
	validityUnparseable = "unparseable"
)

// GeometryValidity fails on rows whose WKT geometry is invalid (code 0) or
// cannot be classified (code -1).
type GeometryValidity struct {
	Table     string   `json:"table" yaml:"table"`
	Field     string   `json:"field" yaml:"field"`
	RefFields []string `json:"ref_fields" yaml:"ref_fields"`
}

type InvalidShapeDetails struct {
	InvalidShapes []query.Record `json:"invalid_shapes"`
}

func (e GeometryValidity) Kind() Kind { return KindGeometryValidity }

func (e GeometryValidity) Validate() error {
	if err := requireName(e.Table, "table"); err != nil {
		return err
	}
	if err := requireName(e.Field, "field"); err != nil {
		return err
	}
	return requireNames(e.RefFields, "ref_fields")
}

func (e GeometryValidity) Evaluate(ctx context.Context, runner query.Runner) (Verdict, error) {
	code := runner.Dialect().GeometryValidityExpr(e.Field)
	sqlText := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (0, -1)",
		selectList(e.RefFields, code+" AS validity_code"), e.Table, code)
	result, err := runQuery(ctx, runner, e.Kind(), sqlText)
	if err != nil {
		return Verdict{}, err
	}
	if result.Len() == 0 {
		return pass(), nil
	}

	shapes := make([]query.Record, 0, result.Len())
	for _, record := range result.Records() {
		label := validityInvalid
		if code, err := query.AsInt64(record.Get("validity_code")); err != nil || code != 0 {
			label = validityUnparseable
		}
		columns := append(append([]string(nil), record.Columns...), "validity")
		values := append(append([]any(nil), record.Values...), label)
		shapes = append(shapes, query.Record{Columns: columns, Values: values})
	}
	return fail(InvalidShapeDetails{InvalidShapes: shapes},
		"invalid shapes found in field '%s' on table '%s', see details", e.Field, e.Table), nil
}
