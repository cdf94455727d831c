package cli

import (
	"github.com/spf13/cobra"

	"codeqa/pkg/index/local"
	"codeqa/pkg/server"
)

func (a *app) newServeCommand() *cobra.Command {
	var embedded bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the agent API",
		Long: `Serve the agent API (POST /v1/agent/ask, /health, /metrics, /v1/logs).

With --embedded-index the local index runs in-process and its Pathway-compatible
routes are mounted on the same listener.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			if err := a.loadSecrets(cmd); err != nil {
				return err
			}

			embedded = embedded || a.cfg.Server.EmbeddedIndex
			rt, err := a.newRuntime(ctx, embedded)
			if err != nil {
				return err
			}
			defer rt.Close()

			// An agent that fails to build still leaves /health and /metrics up.
			var asker server.Asker
			if ag, err := a.newAgent(rt); err != nil {
				a.logger.Error("agent initialization failed: %v", err)
			} else {
				asker = ag
			}

			opts := server.Options{
				Gatherer:    rt.registry,
				Addr:        a.cfg.Addr(),
				Model:       a.cfg.LLM.Model,
				Index:       rt.indexName,
				CORSOrigins: a.cfg.Server.CORSOrigins,
			}
			if rt.local != nil {
				opts.Routes = local.NewServer(rt.local, nil).RegisterIndexRoutes
			}
			return server.New(asker, opts).Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&embedded, "embedded-index", false, "run the local index in-process")
	return cmd
}
