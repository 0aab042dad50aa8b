package cmd

import (
	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/engine"
	"github.com/quarrylabs/quarry/internal/output"
)

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Index the workspace once",
		Long: `Index reconciles the search index with the workspace: new and
modified files are chunked, embedded, and upserted; deleted files are
removed. Unchanged files cost nothing beyond a content hash.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())

			eng, err := engine.Open(cmd.Context(), workspaceRoot)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			if !eng.Config().Indexing.Enabled {
				out.Warning("indexing is disabled in configuration; nothing to do")
				return nil
			}

			diff, err := eng.Index(cmd.Context())
			if err != nil {
				return err
			}

			status := eng.Status(cmd.Context())
			out.Successf("indexed %d added, %d modified, %d removed (%d unchanged)",
				len(diff.Added), len(diff.Modified), len(diff.Removed), len(diff.Unchanged))
			if status.Failed > 0 {
				out.Warningf("%d files failed; run with --debug for details", status.Failed)
			}
			if status.Paused {
				out.Warning("indexing paused: vector backend unreachable")
			}
			return nil
		},
	}
}
