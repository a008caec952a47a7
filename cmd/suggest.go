package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/heal"
	"github.com/xkilldash9x/suture/internal/observability"
)

func newSuggestCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "suggest <description>",
		Short: "Ask the language model for selectors matching an element description",
		Example: `  suture suggest "the search button in the global header"
  suture suggest --output json "vehicle card price"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if err := checkOutput(output); err != nil {
				return err
			}
			logger := observability.GetLogger()
			client := openLLM(cmd.Context(), cfg.Agent(), logger)
			if client != nil {
				defer client.Close()
			}
			return runSuggest(cmd.Context(), cmd.OutOrStdout(), client, strings.Join(args, " "), output, logger)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text or json")
	return cmd
}

func runSuggest(ctx context.Context, out io.Writer, client schemas.LLMClient, description, output string, logger *zap.Logger) error {
	suggestions, err := heal.Suggest(ctx, client, description)
	if err != nil {
		return err
	}
	logger.Debug("Received selector suggestions", zap.Int("count", len(suggestions)))

	if output == outputJSON {
		return writeJSON(out, suggestions)
	}
	for _, s := range suggestions {
		fmt.Fprintf(out, "%-6s %-12s %s\n", s.Reliability, s.Strategy, s.Selector)
	}
	return nil
}
