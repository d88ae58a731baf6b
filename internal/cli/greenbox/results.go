package greenbox

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/digital-land/green-box-data-quality/internal/expectation"
	"github.com/digital-land/green-box-data-quality/internal/results"
	"github.com/digital-land/green-box-data-quality/internal/results/postgres"
	"github.com/digital-land/green-box-data-quality/internal/suite"
)

func newResultsCommand(opts *rootOptions) *cobra.Command {
	var (
		dsn              string
		runID            string
		failOnEscalation bool
	)
	cmd := &cobra.Command{
		Use:   "results [log.jsonl]",
		Short: "Show the responses of a run from a JSONL log or the result store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				responses []expectation.Response
				err       error
			)
			switch {
			case len(args) == 1:
				responses, err = results.ReadLog(args[0])
			case strings.TrimSpace(dsn) != "" && strings.TrimSpace(runID) != "":
				db, openErr := postgres.Open(cmd.Context(), postgres.DBConfig{DSN: dsn, MaxOpenConns: 1})
				if openErr != nil {
					return openErr
				}
				defer func() { _ = db.Close() }()
				responses, err = postgres.NewRepository(db).ListRun(cmd.Context(), runID)
			default:
				return fmt.Errorf("%w: pass a log file, or --results-dsn with --run-id", errUsage)
			}
			if err != nil {
				return err
			}

			tally := results.Count(responses)
			if err := writeResponses(cmd.OutOrStdout(), opts.format, responses, tally); err != nil {
				return err
			}
			if failOnEscalation && tally.Escalated > 0 {
				escalation := &suite.EscalationError{Failures: tally.Escalated}
				if len(responses) > 0 {
					escalation.RunID = responses[0].RunID
					escalation.Label = responses[0].RunLabel
				}
				return escalation
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "results-dsn", opts.Config.Results.DSN, "Postgres DSN of the result store")
	cmd.Flags().StringVar(&runID, "run-id", "", "run to load from the result store")
	cmd.Flags().BoolVar(&failOnEscalation, "fail-on-escalation", false, "exit 1 when a raise_error response failed")
	return cmd
}
