package query

import "fmt"

// PostgresDialect targets PostgreSQL with jsonb and PostGIS. PostGIS raises on
// unparseable WKT, so those rows surface as a query error rather than code -1;
// NULL geometries are reported as -1.
type PostgresDialect struct{}

func (PostgresDialect) Name() string { return "postgres" }

func (PostgresDialect) ListTablesSQL() string { return informationSchemaTablesSQL }

func (PostgresDialect) ListColumnsSQL(table string) string {
	return informationSchemaColumnsSQL(table)
}

func (PostgresDialect) ResidualKeysExpr(field string, keys []string) string {
	doc := fmt.Sprintf("(%s)::jsonb", field)
	return fmt.Sprintf(
		"CASE WHEN jsonb_typeof(%s) = 'object' THEN ARRAY(SELECT k FROM jsonb_object_keys(%s) AS k WHERE k <> ALL(ARRAY[%s]::text[]) ORDER BY k) END",
		doc, doc, QuoteLiterals(keys),
	)
}

func (PostgresDialect) ResidualViolation(expr string) string {
	return fmt.Sprintf("(%s) IS NULL OR cardinality(%s) > 0", expr, expr)
}

func (PostgresDialect) ExtractKeyExpr(field, key string) string {
	return fmt.Sprintf("((%s)::jsonb ->> %s)", field, QuoteLiteral(key))
}

func (PostgresDialect) GeometryValidityExpr(field string) string {
	return fmt.Sprintf("CASE WHEN %s IS NULL THEN -1 WHEN ST_IsValid(ST_GeomFromText(%s)) THEN 1 ELSE 0 END", field, field)
}

func (PostgresDialect) ExtractedLiteral(value any) string { return TextLiteral(value) }
