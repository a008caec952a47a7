package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/internal/config"
	"github.com/xkilldash9x/suture/internal/discovery"
	"github.com/xkilldash9x/suture/internal/observability"
)

type discoverOptions struct {
	target  target
	catalog string
	output  string
}

func newDiscoverCmd() *cobra.Command {
	var opts discoverOptions

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Inventory the interactive elements of a page",
		Long: `Records the navigation items, buttons, links and form fields of a page with the
most stable selector for each. With --catalog the categorized selectors are merged
into a JSON catalog file that tests can look selectors up in.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runDiscover(cmd.Context(), cmd.OutOrStdout(), cfg, opts, observability.GetLogger())
		},
	}

	cmd.Flags().StringVarP(&opts.target.URL, "url", "u", "", "Page to open (relative paths join site.base_url)")
	cmd.Flags().StringVar(&opts.target.HTMLFile, "html", "", "Saved HTML document to inventory instead of a live page")
	cmd.Flags().StringVar(&opts.catalog, "catalog", "", "Catalog file to merge the categorized selectors into")
	cmd.Flags().StringVarP(&opts.output, "output", "o", outputText, "Output format: text or json")
	cmd.MarkFlagsOneRequired("url", "html")
	return cmd
}

func runDiscover(ctx context.Context, out io.Writer, cfg *config.Config, opts discoverOptions, logger *zap.Logger) error {
	if err := checkOutput(opts.output); err != nil {
		return err
	}

	s, err := openSession(ctx, cfg, opts.target, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	found, err := discovery.New(logger).FromPage(ctx, s.driver)
	if err != nil {
		return err
	}
	categorized := discovery.Categorize(found)

	if opts.catalog != "" {
		pageURL, _ := s.driver.CurrentURL(ctx)
		if _, err := discovery.MergeCatalog(opts.catalog, categorized, pageURL, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to update catalog: %w", err)
		}
		logger.Info("Catalog updated",
			zap.String("path", opts.catalog),
			zap.Int("selectors", categorized.Count()))
	}

	if opts.output == outputJSON {
		return writeJSON(out, map[string]interface{}{
			"count":       len(found),
			"selectors":   found,
			"categorized": categorized,
		})
	}

	fmt.Fprintf(out, "%d elements discovered\n", len(found))
	categories := make([]string, 0, len(categorized))
	for c := range categorized {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		keys := make([]string, 0, len(categorized[c]))
		for k := range categorized[c] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(out, "%s:\n", c)
		for _, k := range keys {
			fmt.Fprintf(out, "  %-30s %s\n", k, categorized[c][k])
		}
	}
	return nil
}
