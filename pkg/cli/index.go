package cli

import (
	"github.com/spf13/cobra"

	"codeqa/pkg/index/local"
	"codeqa/pkg/server"
)

func (a *app) newIndexCommand() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Run the local live index server",
		Long: `Index the watch folder, keep it current with a file watcher, and serve the
Pathway-compatible retrieval API. When index.local.repo_url is set the repository
is cloned into index.local.repo_folder and POST /github-webhook pulls and reindexes it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			cfg := a.cfg.Index.Local
			if listen != "" {
				cfg.ListenAddr = listen
			}

			rt := &runtime{logger: a.logger}
			defer rt.Close()
			idx, err := openLocalIndex(ctx, cfg, rt)
			if err != nil {
				return err
			}

			var repo *local.RepoSyncer
			if cfg.RepoURL != "" {
				repo = local.NewRepoSyncer(cfg.RepoURL, cfg.RepoBranch, cfg.RepoFolder)
				if err := repo.Sync(ctx); err != nil {
					a.logger.Warn("initial repository sync failed: %v", err)
				} else if err := idx.Sync(ctx, repo.Folder()); err != nil {
					a.logger.Warn("indexing %s failed: %v", repo.Folder(), err)
				}
			}

			return server.ListenAndServe(ctx, cfg.ListenAddr, local.NewServer(idx, repo).Handler(), a.logger)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default index.local.listen_addr)")
	return cmd
}
