package query

import "fmt"

// DuckDBDialect targets DuckDB with the json extension (autoloaded) and the
// spatial extension for geometry checks.
type DuckDBDialect struct{}

func (DuckDBDialect) Name() string { return "duckdb" }

func (DuckDBDialect) ListTablesSQL() string { return informationSchemaTablesSQL }

func (DuckDBDialect) ListColumnsSQL(table string) string {
	return informationSchemaColumnsSQL(table)
}

// json_keys yields [] for arrays and scalars, so anything but an object gets a
// NULL residual.
func (DuckDBDialect) ResidualKeysExpr(field string, keys []string) string {
	return fmt.Sprintf("CASE WHEN json_type(%s) = 'OBJECT' THEN list_filter(json_keys(%s), k -> NOT list_contains([%s]::VARCHAR[], k)) END",
		field, field, QuoteLiterals(keys))
}

func (DuckDBDialect) ResidualViolation(expr string) string {
	return fmt.Sprintf("(%s) IS NULL OR len(%s) > 0", expr, expr)
}

func (DuckDBDialect) ExtractKeyExpr(field, key string) string {
	return fmt.Sprintf("json_extract_string(%s, %s)", field, QuoteLiteral(JSONPath(key)))
}

func (DuckDBDialect) GeometryValidityExpr(field string) string {
	geom := fmt.Sprintf("TRY(ST_GeomFromText(%s))", field)
	return fmt.Sprintf("CASE WHEN %s IS NULL THEN -1 WHEN ST_IsValid(%s) THEN 1 ELSE 0 END", geom, geom)
}

func (DuckDBDialect) ExtractedLiteral(value any) string { return TextLiteral(value) }
