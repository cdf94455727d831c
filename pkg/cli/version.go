package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"codeqa/pkg/tools"
	"codeqa/pkg/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		// Needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func (a *app) newToolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools the agent can invoke",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			// The registry is only described here, never invoked.
			fmt.Fprint(cmd.OutOrStdout(), tools.NewDefaultRegistry(nil).GenerateToolDocumentation())
		},
	}
}
