package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/internal/config"
	"github.com/xkilldash9x/suture/internal/discovery"
	"github.com/xkilldash9x/suture/internal/observability"
	"github.com/xkilldash9x/suture/internal/server"
)

type serveOptions struct {
	target target
	addr   string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the healer over HTTP for test runners in other languages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, opts, observability.GetLogger())
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (default server.listen_addr)")
	cmd.Flags().StringVarP(&opts.target.URL, "url", "u", "", "Page to open before serving")
	cmd.Flags().StringVar(&opts.target.HTMLFile, "html", "", "Serve against a saved HTML document instead of a live browser")
	return cmd
}

// runServe blocks until ctx is canceled.
func runServe(ctx context.Context, cfg config.Interface, opts serveOptions, logger *zap.Logger) error {
	s, err := openSession(ctx, cfg, opts.target, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	srvCfg := cfg.Server()
	if opts.addr != "" {
		srvCfg.ListenAddr = opts.addr
	}

	handlers := server.NewHandlers(server.Deps{
		Page:       s.page,
		Resolver:   s.healer,
		History:    s.history,
		Suggest:    server.SuggestWith(s.llm),
		Discoverer: discovery.New(logger),
	}, logger)
	return server.New(srvCfg, handlers, logger).Start(ctx)
}
