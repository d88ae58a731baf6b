package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/digital-land/green-box-data-quality/internal/config"
	"github.com/digital-land/green-box-data-quality/internal/migrations"
	"github.com/digital-land/green-box-data-quality/internal/results/postgres"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up|down|status")
	steps := flag.Int("steps", 0, "number of migration steps; 0 means all for up, 1 for down")
	flag.Parse()

	if err := run(*direction, *steps); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(direction string, steps int) error {
	cfg, err := config.LoadFromEnv("greenbox-migrate")
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if cfg.Results.DSN == "" {
		return fmt.Errorf("GREENBOX_RESULTS_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := postgres.Open(ctx, postgres.DBConfig{DSN: cfg.Results.DSN, MaxOpenConns: 1})
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	runner := migrations.NewRunner()
	switch direction {
	case "up":
		applied, err := runner.Up(ctx, db, steps)
		if err != nil {
			return fmt.Errorf("migration up failed: %w", err)
		}
		fmt.Printf("applied %d migration(s)\n", applied)
	case "down":
		rolledBack, err := runner.Down(ctx, db, steps)
		if err != nil {
			return fmt.Errorf("migration down failed: %w", err)
		}
		fmt.Printf("rolled back %d migration(s)\n", rolledBack)
	case "status":
		status, err := runner.Status(ctx, db)
		if err != nil {
			return fmt.Errorf("migration status failed: %w", err)
		}
		for _, item := range status {
			state := "pending"
			if item.Applied {
				state = "applied"
			}
			fmt.Printf("%06d %-24s %s\n", item.Version, item.Name, state)
		}
	default:
		return fmt.Errorf("invalid direction: %s", direction)
	}
	return nil
}
