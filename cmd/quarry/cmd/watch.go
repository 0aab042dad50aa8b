package cmd

import (
	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/engine"
	"github.com/quarrylabs/quarry/internal/output"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Index the workspace and follow file changes",
		Long: `Watch indexes the workspace, then keeps the index current as files
change. Rapid successive saves coalesce into one re-index. Stops on
interrupt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())

			eng, err := engine.Open(cmd.Context(), workspaceRoot)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			out.Statusf("", "watching %s, press Ctrl-C to stop", workspaceRoot)
			return eng.Watch(cmd.Context())
		},
	}
}
