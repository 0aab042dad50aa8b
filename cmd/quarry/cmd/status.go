package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/engine"
	"github.com/quarrylabs/quarry/internal/output"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := engine.Open(cmd.Context(), workspaceRoot)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			status := eng.Status(cmd.Context())

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}

			out := output.New(cmd.OutOrStdout())
			out.KV("root", status.Root)
			out.KV("backend", status.Backend)
			out.KV("backend reachable", status.BackendReachable)
			out.KV("indexing enabled", status.IndexingEnabled)
			out.KV("embed model", status.EmbedModel)
			out.KV("embed dimensions", status.EmbedDimensions)
			out.KV("embed available", status.EmbedAvailable)
			out.KV("files", status.Files)
			out.KV("points", status.Points)
			out.KV("pending", status.Pending)
			out.KV("failed", status.Failed)
			out.KV("paused", status.Paused)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
