package greenbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/digital-land/green-box-data-quality/internal/config"
	"github.com/digital-land/green-box-data-quality/internal/expectation"
	"github.com/digital-land/green-box-data-quality/internal/query"
	"github.com/digital-land/green-box-data-quality/internal/query/duckdb"
	"github.com/digital-land/green-box-data-quality/internal/query/sqlrunner"
	"github.com/digital-land/green-box-data-quality/internal/results"
	"github.com/digital-land/green-box-data-quality/internal/results/archive"
	"github.com/digital-land/green-box-data-quality/internal/results/postgres"
	"github.com/digital-land/green-box-data-quality/internal/rules"
	"github.com/digital-land/green-box-data-quality/internal/storage"
	"github.com/digital-land/green-box-data-quality/internal/storage/s3"
)

// environment holds everything a run opens and must release.
type environment struct {
	dataset query.Runner
	sink    results.Multi
	archive *archive.Archive
	logPath string
	closers []func() error
}

func (e *environment) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i]()
	}
}

func openEnvironment(ctx context.Context, opts *rootOptions, cfg config.Config, label, runID string, startedAt time.Time) (*environment, error) {
	env := &environment{}
	ok := false
	defer func() {
		if !ok {
			env.close()
		}
	}()

	var store storage.ObjectStore
	if len(cfg.Dataset.ParquetTables) > 0 || cfg.Results.ArchiveEnabled {
		var err error
		store, err = openObjectStore(ctx, opts, cfg.ObjectStore)
		if err != nil {
			return nil, err
		}
	}

	dataset, closeDataset, err := openDataset(cfg.Dataset, store)
	if err != nil {
		return nil, err
	}
	env.dataset = dataset
	if closeDataset != nil {
		env.closers = append(env.closers, closeDataset)
	}

	if cfg.Results.Dir != "" {
		log, err := results.NewFileLog(cfg.Results.Dir)
		if err != nil {
			return nil, err
		}
		if env.logPath, err = log.Path(label, runID); err != nil {
			return nil, fmt.Errorf("%w: %v", errUsage, err)
		}
		env.sink = append(env.sink, log)
	}
	if cfg.Results.DSN != "" {
		db, err := postgres.Open(ctx, postgres.DBConfig{
			DSN:             cfg.Results.DSN,
			MaxOpenConns:    cfg.Results.MaxOpenConns,
			MaxIdleConns:    cfg.Results.MaxIdleConns,
			ConnMaxIdleTime: cfg.Results.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Results.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		env.closers = append(env.closers, db.Close)
		env.sink = append(env.sink, postgres.NewRepository(db))
	}
	if cfg.Results.ArchiveEnabled {
		a, err := archive.New(store, label, runID, startedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errUsage, err)
		}
		env.archive = a
		env.sink = append(env.sink, a)
	}

	ok = true
	return env, nil
}

func openDataset(cfg config.DatasetConfig, store storage.ObjectStore) (query.Runner, func() error, error) {
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "duckdb":
		runner, err := duckdb.NewRunner(duckdb.Config{
			Path:       cfg.DSN,
			Extensions: cfg.DuckDBExtensions,
			Store:      store,
			Tables:     cfg.ParquetTables,
			Setup:      cfg.SetupSQL,
		})
		if err != nil {
			return nil, nil, err
		}
		return runner, runner.Close, nil
	case "sqlite", "postgres", "pgx":
		if driver == "postgres" {
			driver = "pgx"
		}
		runner, err := sqlrunner.New(sqlrunner.Config{Driver: driver, DSN: cfg.DSN, Setup: cfg.SetupSQL, Extensions: cfg.SQLiteExtensions})
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", errUsage, err)
		}
		return runner, nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: unsupported dataset driver %q", errUsage, cfg.Driver)
	}
}

// spatialiteExtension provides the ST_* functions geometry checks use on
// sqlite datasets.
const spatialiteExtension = "mod_spatialite"

// sqliteExtensions keeps configured extensions and otherwise loads SpatiaLite
// only when the suite holds a geometry check.
func sqliteExtensions(cfg config.DatasetConfig, defs []rules.Definition) []string {
	if len(cfg.SQLiteExtensions) > 0 {
		return cfg.SQLiteExtensions
	}
	for _, def := range defs {
		if def.Kind == expectation.KindGeometryValidity {
			return []string{spatialiteExtension}
		}
	}
	return nil
}

func openObjectStore(ctx context.Context, opts *rootOptions, cfg config.ObjectStoreConfig) (storage.ObjectStore, error) {
	if opts.OpenObjectStore != nil {
		return opts.OpenObjectStore(ctx, cfg)
	}
	store, err := s3.New(ctx, s3.Config{
		Endpoint:         cfg.Endpoint,
		Region:           cfg.Region,
		Bucket:           cfg.Bucket,
		AccessKeyID:      cfg.AccessKeyID,
		SecretAccessKey:  cfg.SecretAccessKey,
		UseSSL:           cfg.UseSSL,
		Prefix:           cfg.Prefix,
		AutoCreateBucket: cfg.AutoCreateBucket,
	})
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}
	return store, nil
}

