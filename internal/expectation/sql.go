package expectation

import (
	"context"
	"fmt"
	"strings"

	"github.com/digital-land/green-box-data-quality/internal/query"
)

func runQuery(ctx context.Context, runner query.Runner, kind Kind, sqlText string) (query.Result, error) {
	result, err := runner.Run(ctx, sqlText)
	if err != nil {
		return query.Result{}, &QueryError{Kind: kind, SQL: sqlText, Err: err}
	}
	return result, nil
}

func runFirstColumnSet(ctx context.Context, runner query.Runner, kind Kind, sqlText string) (query.ValueSet, error) {
	set, err := query.FirstColumnSet(ctx, runner, sqlText)
	if err != nil {
		return query.ValueSet{}, &QueryError{Kind: kind, SQL: sqlText, Err: err}
	}
	return set, nil
}

// selectList joins reference fields and extra expressions, skipping repeated
// reference fields so the result keeps unique column names.
func selectList(refFields []string, extra ...string) string {
	seen := map[string]struct{}{}
	items := make([]string, 0, len(refFields)+len(extra))
	for _, field := range refFields {
		if _, ok := seen[field]; ok {
			continue
		}
		seen[field] = struct{}{}
		items = append(items, field)
	}
	for _, expr := range extra {
		if _, ok := seen[expr]; ok {
			continue
		}
		items = append(items, expr)
	}
	return strings.Join(items, ", ")
}

func requireName(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return configErrorf("%s is required", field)
	}
	return nil
}

func requireNames(values []string, field string) error {
	if len(values) == 0 {
		return configErrorf("%s must not be empty", field)
	}
	for i, value := range values {
		if strings.TrimSpace(value) == "" {
			return configErrorf("%s[%d] is empty", field, i)
		}
	}
	return nil
}

func singleRow(result query.Result, kind Kind, sqlText string) ([]any, error) {
	if result.Len() == 0 || len(result.Columns) == 0 {
		return nil, &QueryError{Kind: kind, SQL: sqlText, Err: fmt.Errorf("query returned no rows")}
	}
	return result.Rows[0], nil
}
