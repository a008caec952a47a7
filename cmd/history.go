package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/suture/internal/heal"
	"github.com/xkilldash9x/suture/internal/observability"
)

func newHistoryCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the remembered selector replacements",
	}
	cmd.PersistentFlags().StringVarP(&output, "output", "o", outputText, "Output format: text or json")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every healed selector with its replacements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, output, func(h *heal.History) error {
				return printHistory(cmd.OutOrStdout(), h, output)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <selector>",
		Short: "Show the replacements remembered for one selector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, output, func(h *heal.History) error {
				replacements := h.Lookup(args[0])
				if replacements == nil {
					return fmt.Errorf("no history for %q", args[0])
				}
				if output == outputJSON {
					return writeJSON(cmd.OutOrStdout(), map[string][]string{args[0]: replacements})
				}
				for _, r := range replacements {
					fmt.Fprintln(cmd.OutOrStdout(), r)
				}
				return nil
			})
		},
	})
	return cmd
}

func withHistory(cmd *cobra.Command, output string, fn func(*heal.History) error) error {
	cfg, err := getConfigFromContext(cmd.Context())
	if err != nil {
		return err
	}
	if err := checkOutput(output); err != nil {
		return err
	}
	h := openHistory(cmd.Context(), cfg.History(), observability.GetLogger())
	defer h.Close()
	return fn(h)
}

func printHistory(w io.Writer, h *heal.History, output string) error {
	if output == outputJSON {
		return writeJSON(w, h.Snapshot())
	}
	selectors := h.Selectors()
	if len(selectors) == 0 {
		fmt.Fprintln(w, "no healed selectors")
		return nil
	}
	for _, sel := range selectors {
		fmt.Fprintln(w, sel)
		for i, r := range h.Lookup(sel) {
			fmt.Fprintf(w, "  %d. %s\n", i+1, r)
		}
	}
	return nil
}
