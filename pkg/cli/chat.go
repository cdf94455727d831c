package cli

import (
	"io"

	"github.com/spf13/cobra"

	"codeqa/pkg/logx"
	"codeqa/pkg/tui"
)

func (a *app) newChatCommand() *cobra.Command {
	var embedded bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			if err := a.loadSecrets(cmd); err != nil {
				return err
			}
			rt, err := a.newRuntime(ctx, embedded)
			if err != nil {
				return err
			}
			defer rt.Close()

			ag, err := a.newAgent(rt)
			if err != nil {
				return err
			}
			// The TUI owns the terminal; keep log lines out of it.
			logx.SetOutput(io.Discard)
			defer logx.SetOutput(nil)
			return tui.Run(ctx, ag)
		},
	}

	cmd.Flags().BoolVar(&embedded, "embedded-index", false, "query the local index in-process")
	return cmd
}
