package greenbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/digital-land/green-box-data-quality/internal/config"
	"github.com/digital-land/green-box-data-quality/internal/expectation"
	"github.com/digital-land/green-box-data-quality/internal/storage"
	"github.com/digital-land/green-box-data-quality/internal/suite"
)

const (
	ExitOK         = 0
	ExitEscalation = 1
	ExitUsage      = 2
	ExitFailure    = 3
)

var validFormats = []string{"text", "json"}

// Options carries the environment configuration and the process plumbing.
// Command line flags override Config.
type Options struct {
	Config          config.Config
	Stdout          io.Writer
	Stderr          io.Writer
	OpenObjectStore func(ctx context.Context, cfg config.ObjectStoreConfig) (storage.ObjectStore, error)
	Clock           func() time.Time
	NewRunID        func() string
}

type rootOptions struct {
	Options
	format  string
	started bool
}

// Run executes one command and maps its outcome to a process exit code.
func Run(ctx context.Context, args []string, opts Options) int {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	root := &rootOptions{Options: opts}
	cmd := newRootCommand(root)
	cmd.SetArgs(args)
	cmd.SetOut(opts.Stdout)
	cmd.SetErr(opts.Stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	_, _ = fmt.Fprintf(opts.Stderr, "error: %v\n", err)
	return exitCode(err, root.started)
}

func exitCode(err error, started bool) int {
	switch {
	case err == nil:
		return ExitOK
	case !started:
		return ExitUsage
	case errors.Is(err, suite.ErrRunEscalation):
		return ExitEscalation
	case errors.Is(err, expectation.ErrConfiguration), errors.Is(err, errUsage):
		return ExitUsage
	default:
		return ExitFailure
	}
}

var errUsage = errors.New("usage error")

func newRootCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "greenbox",
		Short:         "Evaluate data-quality expectations against a dataset",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.started = true
			if !isValidFormat(opts.format) {
				return fmt.Errorf("%w: invalid format %q: must be one of %v", errUsage, opts.format, validFormats)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Usage()
			return fmt.Errorf("%w: a command is required", errUsage)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.format, "format", "text", "output format (text|json)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newValidateCommand(opts))
	cmd.AddCommand(newResultsCommand(opts))
	cmd.AddCommand(newKindsCommand(opts))
	return cmd
}

func newKindsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the supported expectation kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := expectation.Kinds()
			if opts.format == "json" {
				return writeJSON(cmd.OutOrStdout(), kinds)
			}
			for _, kind := range kinds {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), kind)
			}
			return nil
		},
	}
}

func isValidFormat(format string) bool {
	for _, f := range validFormats {
		if f == format {
			return true
		}
	}
	return false
}
