package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/config"
	"github.com/xkilldash9x/suture/internal/observability"
)

type healOptions struct {
	target     target
	timeout    time.Duration
	strategies []string
	output     string
}

func newHealCmd() *cobra.Command {
	var opts healOptions

	cmd := &cobra.Command{
		Use:   "heal <selector>",
		Short: "Find a working replacement for a selector that no longer matches",
		Long: `Runs the fallback chain for the selector against a page and prints the outcome.
A replacement that works is remembered in the selector history, so the next run
for the same selector resolves from history. Exits with status 1 when every
strategy is exhausted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runHeal(cmd.Context(), cmd.OutOrStdout(), cfg, args[0], opts, observability.GetLogger())
		},
	}

	cmd.Flags().StringVarP(&opts.target.URL, "url", "u", "", "Page to open (relative paths join site.base_url)")
	cmd.Flags().StringVar(&opts.target.HTMLFile, "html", "", "Saved HTML document to heal against instead of a live page")
	cmd.Flags().DurationVarP(&opts.timeout, "timeout", "t", 0, "Wait per candidate (default healing.per_candidate_timeout)")
	cmd.Flags().StringSliceVarP(&opts.strategies, "strategies", "s", nil, "Strategies to enable, e.g. history,semantic")
	cmd.Flags().StringVarP(&opts.output, "output", "o", outputText, "Output format: text or json")
	return cmd
}

// runHeal contains the testable logic of the heal command.
func runHeal(ctx context.Context, out io.Writer, cfg *config.Config, selector string, opts healOptions, logger *zap.Logger) error {
	if err := checkOutput(opts.output); err != nil {
		return err
	}
	if opts.timeout < 0 {
		return fmt.Errorf("--timeout must not be negative")
	}
	if len(opts.strategies) > 0 {
		cfg.HealingCfg.Strategies = opts.strategies
		if err := cfg.HealingCfg.Validate(); err != nil {
			return err
		}
	}

	s, err := openSession(ctx, cfg, opts.target, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	outcome, err := s.healer.Resolve(ctx, selector, opts.timeout)
	if err != nil {
		return err
	}

	if opts.output == outputJSON {
		if err := writeJSON(out, outcome); err != nil {
			return err
		}
	} else {
		printOutcome(out, outcome)
	}

	if !outcome.IsResolved() {
		return fmt.Errorf("no replacement found for %q: %w", outcome.Original, schemas.ErrElementNotFound)
	}
	return nil
}

func printOutcome(w io.Writer, o *schemas.ResolutionOutcome) {
	if o.IsResolved() {
		fmt.Fprintf(w, "%s -> %s\n", o.Original, o.Resolved)
		fmt.Fprintf(w, "strategy: %s, %d attempts, %s\n", o.Strategy, o.Attempts, o.Duration.Round(time.Millisecond))
	} else {
		fmt.Fprintf(w, "%s: exhausted after %d attempts\n", o.Original, o.Attempts)
		if o.BudgetExceeded {
			fmt.Fprintln(w, "chain budget exceeded")
		}
	}
	for _, r := range o.Reports {
		line := fmt.Sprintf("  %-20s %d candidates, %d probed", r.Strategy, r.Candidates, r.Probed)
		if r.Err != "" {
			line += ": " + r.Err
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}
