package query

import (
	"fmt"
	"strings"
)

// SQLiteDialect targets SQLite with the JSON1 functions. Geometry checks use
// the SpatiaLite function names, so the connection must have mod_spatialite
// loaded for them to run.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string { return "sqlite" }

func (SQLiteDialect) ListTablesSQL() string {
	return `SELECT name FROM sqlite_master WHERE type='table' ORDER BY name`
}

func (SQLiteDialect) ListColumnsSQL(table string) string {
	return fmt.Sprintf(`SELECT name FROM pragma_table_info(%s)`, QuoteLiteral(table))
}

func (SQLiteDialect) ResidualKeysExpr(field string, keys []string) string {
	args := []string{field}
	for _, key := range keys {
		args = append(args, QuoteLiteral(JSONPath(key)))
	}
	return fmt.Sprintf("json_remove(%s)", strings.Join(args, ", "))
}

func (SQLiteDialect) ResidualViolation(expr string) string {
	return fmt.Sprintf("%s != '{}' OR %s IS NULL", expr, expr)
}

// json_extract yields SQL-typed values and 1/0 for JSON booleans. Casting to
// text, with booleans spelled out, matches what ->> and json_extract_string
// return on the other engines.
func (SQLiteDialect) ExtractKeyExpr(field, key string) string {
	path := QuoteLiteral(JSONPath(key))
	return fmt.Sprintf("CASE json_type(%s, %s) WHEN 'true' THEN 'true' WHEN 'false' THEN 'false' ELSE CAST(json_extract(%s, %s) AS TEXT) END",
		field, path, field, path)
}

func (SQLiteDialect) ExtractedLiteral(value any) string { return TextLiteral(value) }

// SpatiaLite's ST_IsValid already reports -1 for geometries it cannot parse.
func (SQLiteDialect) GeometryValidityExpr(field string) string {
	return fmt.Sprintf("ST_IsValid(ST_GeomFromText(%s))", field)
}
