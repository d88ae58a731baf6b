package greenbox

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/digital-land/green-box-data-quality/internal/config"
	"github.com/digital-land/green-box-data-quality/internal/expectation"
	"github.com/digital-land/green-box-data-quality/internal/results"
	"github.com/digital-land/green-box-data-quality/internal/rules"
	"github.com/digital-land/green-box-data-quality/internal/storage"
)

const escalatingSuite = `
collection: conservation-area
default_severity: warn
rules:
  - name: too-few-rows
    kind: row_count_range
    params: {table: entity, min: 5, max: 10}
  - name: entity-table
    kind: table_set_existence
    severity: raise_error
    params: {tables: [entity]}
  - name: too-many-rows
    kind: row_count_range
    severity: raise_error
    params: {table: entity, min: 0, max: 1}
`

const passingSuite = `
collection: conservation-area
default_severity: raise_error
tables:
  - name: entity
    min_rows: 1
    max_rows: 10
    columns: [entity, name]
    fields:
      - name: entity
        unique: true
      - name: name
        allowed_values: [a, b, c]
`

func TestRunEscalationExitsOne(t *testing.T) {
	fx := newFixture(t, escalatingSuite)
	code := fx.run(t, "run", "--rules", fx.rulesPath, "--dsn", fx.datasetPath)
	if code != ExitEscalation {
		t.Fatalf("exit = %d, want %d; stderr = %s", code, ExitEscalation, fx.stderr.String())
	}
	if !strings.Contains(fx.stdout.String(), "3 checks, 1 passed, 1 warnings, 1 escalated") {
		t.Fatalf("stdout = %s", fx.stdout.String())
	}

	responses, err := results.ReadLog(filepath.Join(fx.resultsDir, "conservation-area", "run-1.jsonl"))
	if err != nil {
		t.Fatalf("ReadLog() error = %v", err)
	}
	if len(responses) != 3 {
		t.Fatalf("responses = %d, want 3", len(responses))
	}
	if responses[0].Name != "too-few-rows" || responses[0].Severity != "warn" {
		t.Fatalf("first response = %+v", responses[0])
	}
}

func TestRunPassingSuiteWritesJSONSummary(t *testing.T) {
	fx := newFixture(t, passingSuite)
	code := fx.run(t, "--format", "json", "run", "--rules", fx.rulesPath, "--dsn", fx.datasetPath, "--label", "nightly")
	if code != ExitOK {
		t.Fatalf("exit = %d; stderr = %s", code, fx.stderr.String())
	}
	var out runSummaryOutput
	if err := json.Unmarshal(fx.stdout.Bytes(), &out); err != nil {
		t.Fatalf("Unmarshal() error = %v; stdout = %s", err, fx.stdout.String())
	}
	if out.Label != "nightly" || out.Total != 4 || out.Passed != 4 || out.RunID != "run-1" {
		t.Fatalf("summary = %+v", out)
	}
	if out.ResultsLog != filepath.Join(fx.resultsDir, "nightly", "run-1.jsonl") {
		t.Fatalf("ResultsLog = %q", out.ResultsLog)
	}
}

func TestRunQueryErrorExitsThree(t *testing.T) {
	fx := newFixture(t, `
default_severity: warn
rules:
  - name: missing
    kind: row_count_range
    params: {table: missing, min: 0, max: 1}
`)
	code := fx.run(t, "run", "--rules", fx.rulesPath, "--dsn", fx.datasetPath)
	if code != ExitFailure {
		t.Fatalf("exit = %d, want %d; stderr = %s", code, ExitFailure, fx.stderr.String())
	}
	if !strings.Contains(fx.stderr.String(), "query error") {
		t.Fatalf("stderr = %s", fx.stderr.String())
	}
}

func TestRunLoadsSQLiteExtensions(t *testing.T) {
	fx := newFixture(t, passingSuite)
	code := fx.run(t, "run", "--rules", fx.rulesPath, "--dsn", fx.datasetPath, "--sqlite-extension", "greenbox_missing_extension")
	if code != ExitFailure {
		t.Fatalf("exit = %d, want %d; stderr = %s", code, ExitFailure, fx.stderr.String())
	}
	if !strings.Contains(fx.stderr.String(), "greenbox_missing_extension") {
		t.Fatalf("stderr = %s", fx.stderr.String())
	}
}

func TestSQLiteExtensionsAddSpatialiteForGeometryRules(t *testing.T) {
	rows, err := rules.NewDefinition("rows", expectation.KindRowCountRange, expectation.SeverityWarn, expectation.RowCountRange{Table: "entity", Min: 0, Max: 1})
	if err != nil {
		t.Fatalf("NewDefinition() error = %v", err)
	}
	shapes, err := rules.NewDefinition("shapes", expectation.KindGeometryValidity, expectation.SeverityWarn,
		expectation.GeometryValidity{Table: "entity", Field: "geometry", RefFields: []string{"entity"}})
	if err != nil {
		t.Fatalf("NewDefinition() error = %v", err)
	}

	if got := sqliteExtensions(config.DatasetConfig{}, []rules.Definition{rows}); got != nil {
		t.Fatalf("extensions = %v, want none", got)
	}
	if got := sqliteExtensions(config.DatasetConfig{}, []rules.Definition{rows, shapes}); !reflect.DeepEqual(got, []string{"mod_spatialite"}) {
		t.Fatalf("extensions = %v", got)
	}
	configured := config.DatasetConfig{SQLiteExtensions: []string{"/usr/lib/mod_spatialite.so"}}
	if got := sqliteExtensions(configured, []rules.Definition{shapes}); !reflect.DeepEqual(got, configured.SQLiteExtensions) {
		t.Fatalf("extensions = %v", got)
	}
}

func TestRunArchivesToObjectStore(t *testing.T) {
	fx := newFixture(t, passingSuite)
	store := &memoryStore{objects: map[string][]byte{}}
	fx.opts.OpenObjectStore = func(context.Context, config.ObjectStoreConfig) (storage.ObjectStore, error) {
		return store, nil
	}
	code := fx.run(t, "run", "--rules", fx.rulesPath, "--dsn", fx.datasetPath, "--archive")
	if code != ExitOK {
		t.Fatalf("exit = %d; stderr = %s", code, fx.stderr.String())
	}
	key := "results/conservation-area/date=2026-03-04/run-1.parquet"
	if len(store.objects[key]) == 0 {
		t.Fatalf("archive %q missing; objects = %d", key, len(store.objects))
	}
}

func TestRunRequiresRules(t *testing.T) {
	fx := newFixture(t, passingSuite)
	if code := fx.run(t, "run"); code != ExitUsage {
		t.Fatalf("exit = %d, want %d", code, ExitUsage)
	}
}

func TestValidate(t *testing.T) {
	fx := newFixture(t, passingSuite)
	if code := fx.run(t, "validate", fx.rulesPath); code != ExitOK {
		t.Fatalf("exit = %d; stderr = %s", code, fx.stderr.String())
	}
	if !strings.Contains(fx.stdout.String(), "4 rule(s) valid") || !strings.Contains(fx.stdout.String(), "entity.entity:unique") {
		t.Fatalf("stdout = %s", fx.stdout.String())
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, bad, "rules:\n  - name: x\n    kind: check_everything\n    severity: warn\n")
	if code := fx.run(t, "validate", bad); code != ExitUsage {
		t.Fatalf("exit = %d, want %d", code, ExitUsage)
	}
	if code := fx.run(t, "validate", filepath.Join(t.TempDir(), "absent.yaml")); code != ExitUsage {
		t.Fatalf("exit = %d, want %d", code, ExitUsage)
	}
}

func TestResultsCommand(t *testing.T) {
	fx := newFixture(t, escalatingSuite)
	if code := fx.run(t, "run", "--rules", fx.rulesPath, "--dsn", fx.datasetPath); code != ExitEscalation {
		t.Fatalf("run exit = %d", code)
	}
	logPath := filepath.Join(fx.resultsDir, "conservation-area", "run-1.jsonl")

	if code := fx.run(t, "results", logPath); code != ExitOK {
		t.Fatalf("exit = %d; stderr = %s", code, fx.stderr.String())
	}
	if !strings.Contains(fx.stdout.String(), "FAIL raise_error too-many-rows") {
		t.Fatalf("stdout = %s", fx.stdout.String())
	}
	if code := fx.run(t, "results", "--fail-on-escalation", logPath); code != ExitEscalation {
		t.Fatalf("exit = %d, want %d", code, ExitEscalation)
	}
	if code := fx.run(t, "results"); code != ExitUsage {
		t.Fatalf("exit = %d, want %d", code, ExitUsage)
	}
}

func TestUsageErrors(t *testing.T) {
	fx := newFixture(t, passingSuite)
	for _, args := range [][]string{
		{},
		{"explode"},
		{"--format", "xml", "kinds"},
		{"run", "--no-such-flag"},
	} {
		if code := fx.run(t, args...); code != ExitUsage {
			t.Fatalf("args %v: exit = %d, want %d", args, code, ExitUsage)
		}
	}
}

func TestKinds(t *testing.T) {
	fx := newFixture(t, passingSuite)
	if code := fx.run(t, "kinds"); code != ExitOK {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(fx.stdout.String(), "document_value_membership") {
		t.Fatalf("stdout = %s", fx.stdout.String())
	}
}

func TestExitCodeMapping(t *testing.T) {
	if got := exitCode(errors.New("boom"), false); got != ExitUsage {
		t.Fatalf("exitCode(before start) = %d", got)
	}
	if got := exitCode(errors.New("boom"), true); got != ExitFailure {
		t.Fatalf("exitCode(plain) = %d", got)
	}
}

type fixture struct {
	opts        Options
	rulesPath   string
	datasetPath string
	resultsDir  string
	stdout      *bytes.Buffer
	stderr      *bytes.Buffer
}

func newFixture(t *testing.T, suiteYAML string) *fixture {
	t.Helper()
	dir := t.TempDir()
	fx := &fixture{
		rulesPath:   filepath.Join(dir, "rules.yaml"),
		datasetPath: filepath.Join(dir, "dataset.sqlite3"),
		resultsDir:  filepath.Join(dir, "results"),
		stdout:      &bytes.Buffer{},
		stderr:      &bytes.Buffer{},
	}
	writeFile(t, fx.rulesPath, suiteYAML)

	db, err := sql.Open("sqlite", fx.datasetPath)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()
	for _, statement := range []string{
		`CREATE TABLE entity (entity INTEGER, name TEXT)`,
		`INSERT INTO entity VALUES (1, 'a'), (2, 'b'), (3, 'c')`,
	} {
		if _, err := db.Exec(statement); err != nil {
			t.Fatalf("Exec(%q) error = %v", statement, err)
		}
	}

	cfg, err := config.Load("greenbox", func(key string) (string, bool) {
		values := map[string]string{
			"GREENBOX_PROFILE":     "test",
			"GREENBOX_RESULTS_DIR": fx.resultsDir,
		}
		value, ok := values[key]
		return value, ok
	})
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	fx.opts = Options{
		Config:   cfg,
		Clock:    func() time.Time { return time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC) },
		NewRunID: func() string { return "run-1" },
	}
	return fx
}

func (f *fixture) run(t *testing.T, args ...string) int {
	t.Helper()
	f.stdout.Reset()
	f.stderr.Reset()
	opts := f.opts
	opts.Stdout = f.stdout
	opts.Stderr = f.stderr
	return Run(context.Background(), args, opts)
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

type memoryStore struct {
	objects map[string][]byte
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.objects[key] = data
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) List(context.Context, string) ([]storage.ObjectInfo, error) {
	return nil, nil
}
