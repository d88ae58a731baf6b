package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/digital-land/green-box-data-quality/internal/query"
	"github.com/digital-land/green-box-data-quality/internal/query/sqlrunner"
	"github.com/digital-land/green-box-data-quality/internal/storage"
)

type Config struct {
	// Path is a DuckDB database file opened read-only. Empty means an
	// in-memory database, useful when the dataset is only parquet objects.
	Path string
	// Extensions are loaded on every connection, e.g. "spatial".
	Extensions []string
	// Store and Tables expose parquet objects as views: table name -> object
	// keys, or prefixes ending in "/".
	Store  storage.ObjectStore
	Tables map[string][]string
	Setup  []string
}

type Runner struct {
	cfg Config

	mu      sync.Mutex
	workDir string
	local   map[string][]string
}

func NewRunner(cfg Config) (*Runner, error) {
	if len(cfg.Tables) > 0 && cfg.Store == nil {
		return nil, fmt.Errorf("object store is required for parquet tables")
	}
	return &Runner{cfg: cfg}, nil
}

func (r *Runner) Dialect() query.Dialect {
	return query.DuckDBDialect{}
}

func (r *Runner) Run(ctx context.Context, sqlText string) (query.Result, error) {
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}

	start := time.Now()
	localPaths, err := r.materialize(ctx)
	if err != nil {
		return query.Result{}, err
	}

	db, err := sql.Open("duckdb", r.dsn())
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	conn, err := db.Conn(ctx)
	if err != nil {
		return query.Result{}, fmt.Errorf("acquire duckdb connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	for _, extension := range r.cfg.Extensions {
		extension = strings.TrimSpace(extension)
		if extension == "" {
			continue
		}
		for _, statement := range []string{"INSTALL " + extension, "LOAD " + extension} {
			if _, err := conn.ExecContext(ctx, statement); err != nil {
				return query.Result{}, fmt.Errorf("load extension %q: %w", extension, err)
			}
		}
	}

	// a read-only database file only accepts temporary views
	viewKind := "VIEW"
	if r.dsn() != "" {
		viewKind = "TEMP VIEW"
	}
	for _, tableName := range sortedKeys(localPaths) {
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE %s %s AS SELECT * FROM read_parquet(%s)`, viewKind, quoteIdent(tableName), quoteStringArray(localPaths[tableName]))
		if _, err := conn.ExecContext(ctx, viewSQL); err != nil {
			return query.Result{}, fmt.Errorf("create view for table %q: %w", tableName, err)
		}
	}

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

	result, err := sqlrunner.ScanRows(rows)
	if err != nil {
		return query.Result{}, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

// Close removes the downloaded parquet files.
func (r *Runner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.workDir == "" {
		return nil
	}
	err := os.RemoveAll(r.workDir)
	r.workDir = ""
	r.local = nil
	return err
}

func (r *Runner) dsn() string {
	if strings.TrimSpace(r.cfg.Path) == "" {
		return ""
	}
	return r.cfg.Path + "?access_mode=read_only"
}

// materialize downloads every configured parquet object once per runner.
func (r *Runner) materialize(ctx context.Context) (map[string][]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cfg.Tables) == 0 || r.local != nil {
		return r.local, nil
	}

	workDir, err := os.MkdirTemp("", "greenbox-duckdb-")
	if err != nil {
		return nil, fmt.Errorf("create parquet work dir: %w", err)
	}

	local := map[string][]string{}
	index := 0
	for _, tableName := range sortedKeys(r.cfg.Tables) {
		keys, err := storage.ExpandParquetKeys(ctx, r.cfg.Store, r.cfg.Tables[tableName])
		if err != nil {
			_ = os.RemoveAll(workDir)
			return nil, fmt.Errorf("resolve parquet objects for table %q: %w", tableName, err)
		}
		for _, objectKey := range keys {
			localPath := filepath.Join(workDir, fmt.Sprintf("%s_%d.parquet", sanitizeFileComponent(tableName), index))
			index++
			if err := r.download(ctx, objectKey, localPath); err != nil {
				_ = os.RemoveAll(workDir)
				return nil, err
			}
			local[tableName] = append(local[tableName], localPath)
		}
	}

	r.workDir = workDir
	r.local = local
	return local, nil
}

func (r *Runner) download(ctx context.Context, objectKey, localPath string) error {
	reader, err := r.cfg.Store.Get(ctx, objectKey)
	if err != nil {
		return fmt.Errorf("get object %q: %w", objectKey, err)
	}
	defer func() { _ = reader.Close() }()

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local parquet file %q: %w", localPath, err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return fmt.Errorf("write local parquet file %q: %w", localPath, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close local parquet file %q: %w", localPath, err)
	}
	return nil
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	return "[" + query.QuoteLiterals(values) + "]"
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
