package sqlrunner

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/digital-land/green-box-data-quality/internal/query"
)

type Config struct {
	// Driver is a registered database/sql driver name: "sqlite" or "pgx".
	Driver string
	DSN    string
	// Dialect defaults to the dialect matching Driver.
	Dialect query.Dialect
	// Setup statements run on the acquired connection before every query.
	Setup []string
	// Extensions are SQLite loadable extensions, e.g. "mod_spatialite". When
	// set, sqlite datasets open through mattn/go-sqlite3 instead of the pure Go
	// driver, which cannot load extensions.
	Extensions []string
}

// Runner executes each query on a freshly opened connection and closes it
// afterwards, so no connection state leaks from one check into the next.
type Runner struct {
	cfg     Config
	dialect query.Dialect
	openDB  func(ctx context.Context) (*sql.DB, error)
}

func New(cfg Config) (*Runner, error) {
	cfg.Driver = strings.TrimSpace(cfg.Driver)
	if cfg.Driver == "" {
		return nil, fmt.Errorf("sql driver is required")
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("dataset dsn is required")
	}
	dialect := cfg.Dialect
	if dialect == nil {
		var err error
		dialect, err = query.NewDialect(cfg.Driver)
		if err != nil {
			return nil, err
		}
	}

	runner := &Runner{cfg: cfg, dialect: dialect}
	runner.openDB = func(context.Context) (*sql.DB, error) {
		return sql.Open(cfg.Driver, cfg.DSN)
	}
	if hasExtensions(cfg.Extensions) {
		if dialect.Name() != "sqlite" {
			return nil, fmt.Errorf("extensions are only supported for sqlite datasets, got driver %q", cfg.Driver)
		}
		connector := newExtensionConnector(cfg.DSN, cfg.Extensions)
		runner.openDB = func(context.Context) (*sql.DB, error) {
			return sql.OpenDB(connector), nil
		}
	}
	return runner, nil
}

func (r *Runner) Dialect() query.Dialect {
	return r.dialect
}

func (r *Runner) Run(ctx context.Context, sqlText string) (query.Result, error) {
	sqlText = strings.TrimSpace(sqlText)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}

	start := time.Now()
	db, err := r.openDB(ctx)
	if err != nil {
		return query.Result{}, fmt.Errorf("open %s dataset: %w", r.cfg.Driver, err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		return query.Result{}, fmt.Errorf("acquire %s connection: %w", r.cfg.Driver, err)
	}
	defer func() { _ = conn.Close() }()

	for _, statement := range r.cfg.Setup {
		if strings.TrimSpace(statement) == "" {
			continue
		}
		if _, err := conn.ExecContext(ctx, statement); err != nil {
			return query.Result{}, fmt.Errorf("run setup statement %q: %w", statement, err)
		}
	}

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result, err := ScanRows(rows)
	if err != nil {
		return query.Result{}, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

func hasExtensions(extensions []string) bool {
	for _, extension := range extensions {
		if strings.TrimSpace(extension) != "" {
			return true
		}
	}
	return false
}

// ScanRows drains rows into a normalised result.
func ScanRows(rows *sql.Rows) (query.Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, query.NormalizeRow(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	return query.NewResult(columns, resultRows)
}
