package query

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownDialect = errors.New("unknown sql dialect")

// Dialect abstracts the catalog, JSON and geometry SQL that differs between the
// engines a dataset can live in. Everything else the checks emit is portable.
type Dialect interface {
	// Name returns "duckdb", "sqlite" or "postgres".
	Name() string

	// ListTablesSQL returns a query whose first column holds the table names.
	ListTablesSQL() string

	// ListColumnsSQL returns a query whose first column holds the column names
	// of table.
	ListColumnsSQL(table string) string

	// ResidualKeysExpr returns an expression yielding the keys of the document
	// in field that are not in keys, or NULL when it cannot be computed.
	ResidualKeysExpr(field string, keys []string) string

	// ResidualViolation returns a predicate over a residual expression that is
	// true for a non-empty or NULL residual.
	ResidualViolation(expr string) string

	// ExtractKeyExpr returns an expression yielding the text value stored at key
	// in the document held by field, or NULL when the key is missing.
	ExtractKeyExpr(field, key string) string

	// ExtractedLiteral renders value for comparison with ExtractKeyExpr.
	// Every dialect compares by the canonical text of ValueKey, so 1 and "1"
	// name the same value, as they do in a ValueSet.
	ExtractedLiteral(value any) string

	// GeometryValidityExpr returns an integer expression: 1 valid, 0 invalid,
	// -1 unparseable or unknown.
	GeometryValidityExpr(field string) string
}

func NewDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "duckdb":
		return DuckDBDialect{}, nil
	case "sqlite", "sqlite3", "spatialite":
		return SQLiteDialect{}, nil
	case "postgres", "postgresql", "pgx":
		return PostgresDialect{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, name)
	}
}

// QuoteLiteral renders value as a single-quoted SQL string literal.
func QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func QuoteLiterals(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, QuoteLiteral(value))
	}
	return strings.Join(quoted, ",")
}

// TextLiteral renders any scalar as a string literal of its canonical text.
func TextLiteral(value any) string {
	if value == nil {
		return "NULL"
	}
	return QuoteLiteral(ValueKey(value))
}

// JSONPath builds a single-key JSON path with the key quoted, so keys holding
// dots or spaces address one member.
func JSONPath(key string) string {
	return `$."` + strings.ReplaceAll(key, `"`, `\"`) + `"`
}

const informationSchemaTablesSQL = `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() ORDER BY table_name`

func informationSchemaColumnsSQL(table string) string {
	return `SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ` +
		QuoteLiteral(table) + ` ORDER BY ordinal_position`
}
