package cmd

import (
	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/engine"
	"github.com/quarrylabs/quarry/internal/output"
)

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the index",
		Long: `Clear removes every indexed vector, keyword document, and manifest
record. The next index run re-embeds the whole workspace. Use it after
changing the embedding model.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := engine.Open(cmd.Context(), workspaceRoot)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			if err := eng.Clear(cmd.Context()); err != nil {
				return err
			}

			output.New(cmd.OutOrStdout()).Success("index cleared")
			return nil
		},
	}
}
