package greenbox

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/digital-land/green-box-data-quality/internal/config"
	"github.com/digital-land/green-box-data-quality/internal/observability"
	"github.com/digital-land/green-box-data-quality/internal/rules"
	"github.com/digital-land/green-box-data-quality/internal/suite"
)

type runFlags struct {
	rules           string
	label           string
	driver          string
	dsn             string
	setupSQL        []string
	sqliteExts      []string
	extensions      []string
	parquetTables   []string
	resultsDir      string
	resultsDSN      string
	archive         bool
	metricsTextfile string
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate a rule suite and persist every response",
		Long: `Evaluate every rule of a suite against the dataset, in declaration order.

Exit status is 0 when no raise_error rule failed, 1 when at least one did,
2 for configuration errors and 3 when a query or result store failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.apply(cmd, opts.Config)
			if err != nil {
				return err
			}
			return runSuite(cmd.Context(), opts, cfg, cmd)
		},
	}

	cfg := opts.Config
	f := cmd.Flags()
	f.StringVar(&flags.rules, "rules", cfg.Rules.Path, "rule suite file (YAML or JSON)")
	f.StringVar(&flags.label, "label", cfg.Rules.RunLabel, "run label; defaults to the suite collection")
	f.StringVar(&flags.driver, "driver", cfg.Dataset.Driver, "dataset driver (duckdb|sqlite|postgres)")
	f.StringVar(&flags.dsn, "dsn", cfg.Dataset.DSN, "dataset DSN; defaults to the suite dataset")
	f.StringArrayVar(&flags.setupSQL, "setup-sql", nil, "statement run before every query (repeatable)")
	f.StringSliceVar(&flags.sqliteExts, "sqlite-extension", nil, "SQLite extension to load, e.g. mod_spatialite (repeatable)")
	f.StringSliceVar(&flags.extensions, "duckdb-extension", nil, "DuckDB extension to load (repeatable)")
	f.StringArrayVar(&flags.parquetTables, "parquet-table", nil, "table=key or table=prefix/ served from the object store (repeatable)")
	f.StringVar(&flags.resultsDir, "results-dir", cfg.Results.Dir, "directory for JSONL result logs")
	f.StringVar(&flags.resultsDSN, "results-dsn", cfg.Results.DSN, "Postgres DSN of the result store")
	f.BoolVar(&flags.archive, "archive", cfg.Results.ArchiveEnabled, "upload a parquet archive of the run to the object store")
	f.StringVar(&flags.metricsTextfile, "metrics-textfile", cfg.Observability.MetricsTextfile, "write prometheus metrics to this file after the run")
	return cmd
}

func (f *runFlags) apply(cmd *cobra.Command, cfg config.Config) (config.Config, error) {
	cfg.Rules.Path = f.rules
	cfg.Rules.RunLabel = f.label
	cfg.Dataset.Driver = f.driver
	cfg.Dataset.DSN = f.dsn
	cfg.Results.Dir = f.resultsDir
	cfg.Results.DSN = f.resultsDSN
	cfg.Results.ArchiveEnabled = f.archive
	cfg.Observability.MetricsTextfile = f.metricsTextfile
	if cmd.Flags().Changed("setup-sql") {
		cfg.Dataset.SetupSQL = f.setupSQL
	}
	if cmd.Flags().Changed("sqlite-extension") {
		cfg.Dataset.SQLiteExtensions = f.sqliteExts
	}
	if cmd.Flags().Changed("duckdb-extension") {
		cfg.Dataset.DuckDBExtensions = f.extensions
	}
	if cmd.Flags().Changed("parquet-table") {
		tables, err := config.ParseTableMap(strings.Join(f.parquetTables, ","))
		if err != nil {
			return config.Config{}, fmt.Errorf("%w: --parquet-table: %v", errUsage, err)
		}
		cfg.Dataset.ParquetTables = tables
	}
	if strings.TrimSpace(cfg.Rules.Path) == "" {
		return config.Config{}, fmt.Errorf("%w: --rules or GREENBOX_RULES_PATH is required", errUsage)
	}
	return cfg, nil
}

func runSuite(ctx context.Context, opts *rootOptions, cfg config.Config, cmd *cobra.Command) error {
	ruleSuite, err := rules.Load(cfg.Rules.Path)
	if err != nil {
		return err
	}
	defs, err := ruleSuite.Definitions()
	if err != nil {
		return err
	}
	if cfg.Dataset.DSN == "" {
		cfg.Dataset.DSN = ruleSuite.Dataset
	}
	if strings.EqualFold(cfg.Dataset.Driver, "sqlite") {
		cfg.Dataset.SQLiteExtensions = sqliteExtensions(cfg.Dataset, defs)
	}
	label := firstNonEmpty(cfg.Rules.RunLabel, ruleSuite.Collection, suiteLabel(cfg.Rules.Path))
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	logger := observability.NewLogger(cfg, cmd.ErrOrStderr())
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	runID := uuid.NewString()
	if opts.NewRunID != nil {
		runID = opts.NewRunID()
	}

	env, err := openEnvironment(ctx, opts, cfg, label, runID, clock())
	if err != nil {
		return err
	}
	defer env.close()

	runner := &suite.Runner{
		Dataset:  env.dataset,
		Sink:     env.sink,
		Logger:   logger,
		Clock:    clock,
		NewRunID: func() string { return runID },
	}
	summary, runErr := runner.Run(ctx, label, defs)

	if env.archive != nil {
		key, err := env.archive.Close(ctx)
		if err != nil && runErr == nil {
			runErr = err
		}
		if err == nil && key != "" {
			logger.Info("result archive uploaded", "key", key)
		}
	}
	if cfg.Observability.MetricsTextfile != "" {
		if err := observability.WriteTextfile(cfg.Observability.MetricsTextfile); err != nil {
			logger.Warn("metrics textfile not written", "error", err)
		}
	}
	if summary.RunID != "" {
		if err := writeSummary(cmd.OutOrStdout(), opts.format, summary, env.logPath); err != nil {
			return err
		}
	}
	return runErr
}

func suiteLabel(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
