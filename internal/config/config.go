package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	Dataset       DatasetConfig
	Rules         RulesConfig
	Results       ResultsConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

// DatasetConfig selects the database the expectations are evaluated against.
// ParquetTables maps a DuckDB view name to object keys or key prefixes.
type DatasetConfig struct {
	Driver           string
	DSN              string
	SetupSQL         []string
	SQLiteExtensions []string
	DuckDBExtensions []string
	ParquetTables    map[string][]string
}

type RulesConfig struct {
	Path     string
	RunLabel string
}

type ResultsConfig struct {
	Dir             string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	ArchiveEnabled  bool
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel        slog.Level
	LogJSON         bool
	MetricsTextfile string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("GREENBOX_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid GREENBOX_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "GREENBOX_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "GREENBOX_DATASET_DRIVER", &cfg.Dataset.Driver); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "GREENBOX_DATASET_DSN", &cfg.Dataset.DSN); err != nil {
		return Config{}, err
	}
	if err := applyStatements(lookup, "GREENBOX_DATASET_SETUP_SQL", &cfg.Dataset.SetupSQL); err != nil {
		return Config{}, err
	}
	if err := applyList(lookup, "GREENBOX_SQLITE_EXTENSIONS", &cfg.Dataset.SQLiteExtensions); err != nil {
		return Config{}, err
	}
	if err := applyList(lookup, "GREENBOX_DUCKDB_EXTENSIONS", &cfg.Dataset.DuckDBExtensions); err != nil {
		return Config{}, err
	}
	if err := applyTableMap(lookup, "GREENBOX_DUCKDB_PARQUET_TABLES", &cfg.Dataset.ParquetTables); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "GREENBOX_RULES_PATH", &cfg.Rules.Path); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "GREENBOX_RUN_LABEL", &cfg.Rules.RunLabel); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "GREENBOX_RESULTS_DIR", &cfg.Results.Dir); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "GREENBOX_RESULTS_DSN", &cfg.Results.DSN); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "GREENBOX_RESULTS_MAX_OPEN_CONNS", &cfg.Results.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "GREENBOX_RESULTS_MAX_IDLE_CONNS", &cfg.Results.MaxIdleConns); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "GREENBOX_RESULTS_CONN_MAX_IDLE_TIME", &cfg.Results.ConnMaxIdleTime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "GREENBOX_RESULTS_CONN_MAX_LIFETIME", &cfg.Results.ConnMaxLifetime); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "GREENBOX_ARCHIVE_ENABLED", &cfg.Results.ArchiveEnabled); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "GREENBOX_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "GREENBOX_OBJECTSTORE_REGION", &cfg.ObjectStore.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "GREENBOX_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "GREENBOX_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "GREENBOX_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "GREENBOX_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "GREENBOX_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "GREENBOX_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "GREENBOX_METRICS_TEXTFILE", &cfg.Observability.MetricsTextfile); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "GREENBOX_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "GREENBOX_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that command line flags may also change.
func (c Config) Validate() error {
	switch strings.ToLower(c.Dataset.Driver) {
	case "duckdb", "sqlite", "postgres", "pgx":
	default:
		return fmt.Errorf("invalid dataset driver: %q", c.Dataset.Driver)
	}
	if len(c.Dataset.SQLiteExtensions) > 0 && !strings.EqualFold(c.Dataset.Driver, "sqlite") {
		return fmt.Errorf("sqlite extensions require the sqlite driver")
	}
	if len(c.Dataset.ParquetTables) > 0 && !strings.EqualFold(c.Dataset.Driver, "duckdb") {
		return fmt.Errorf("parquet tables require the duckdb driver")
	}
	if c.Results.ArchiveEnabled && c.ObjectStore.Bucket == "" {
		return fmt.Errorf("object store bucket is required when archiving is enabled")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "greenbox"},
		Dataset: DatasetConfig{
			Driver: "sqlite",
		},
		Results: ResultsConfig{
			Dir:             "results",
			MaxOpenConns:    4,
			MaxIdleConns:    4,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "greenbox",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  false,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Results.Dir = ""
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Observability.LogJSON = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

// applyList reads a comma separated list, dropping empty entries.
func applyList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = SplitList(raw, ",")
	return nil
}

// applyStatements reads semicolon separated SQL statements.
func applyStatements(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = SplitList(raw, ";")
	return nil
}

func applyTableMap(lookup LookupFunc, key string, dst *map[string][]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	tables, err := ParseTableMap(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = tables
	return nil
}

func SplitList(raw, sep string) []string {
	parts := strings.Split(raw, sep)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseTableMap parses "table=key,table=prefix/" pairs. A table named more than
// once collects every key in order.
func ParseTableMap(raw string) (map[string][]string, error) {
	out := map[string][]string{}
	for _, entry := range SplitList(raw, ",") {
		table, ref, ok := strings.Cut(entry, "=")
		table = strings.TrimSpace(table)
		ref = strings.TrimSpace(ref)
		if !ok || table == "" || ref == "" {
			return nil, fmt.Errorf("entry %q must be table=key", entry)
		}
		out[table] = append(out[table], ref)
	}
	return out, nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level, err := ParseLogLevel(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = level
	return nil
}

func ParseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}
