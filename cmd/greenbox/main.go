package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/digital-land/green-box-data-quality/internal/cli/greenbox"
	"github.com/digital-land/green-box-data-quality/internal/config"
)

func main() {
	cfg, err := config.LoadFromEnv("greenbox")
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(greenbox.ExitUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := greenbox.Run(ctx, os.Args[1:], greenbox.Options{
		Config: cfg,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	stop()
	os.Exit(code)
}
