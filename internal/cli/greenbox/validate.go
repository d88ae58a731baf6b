package greenbox

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/digital-land/green-box-data-quality/internal/rules"
)

type validateOutput struct {
	Valid bool            `json:"valid"`
	Rules []validatedRule `json:"rules"`
}

type validatedRule struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
}

func newValidateCommand(opts *rootOptions) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "validate [rules-file]",
		Short: "Resolve every rule of a suite without touching the dataset",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				path = args[0]
			}
			if strings.TrimSpace(path) == "" {
				return fmt.Errorf("%w: a rules file is required", errUsage)
			}
			ruleSuite, err := rules.Load(path)
			if err != nil {
				return err
			}
			defs, err := ruleSuite.Definitions()
			if err != nil {
				return err
			}
			checks, err := rules.Resolve(defs)
			if err != nil {
				return err
			}

			out := validateOutput{Valid: true, Rules: make([]validatedRule, 0, len(checks))}
			for _, check := range checks {
				out.Rules = append(out.Rules, validatedRule{
					Name:     check.Name,
					Kind:     string(check.Expectation.Kind()),
					Severity: string(check.Severity),
				})
			}
			if opts.format == "json" {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			w := cmd.OutOrStdout()
			for _, rule := range out.Rules {
				_, _ = fmt.Fprintf(w, "%-12s %-26s %s\n", rule.Severity, rule.Kind, rule.Name)
			}
			_, _ = fmt.Fprintf(w, "%d rule(s) valid\n", len(out.Rules))
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "rules", opts.Config.Rules.Path, "rule suite file (YAML or JSON)")
	return cmd
}
