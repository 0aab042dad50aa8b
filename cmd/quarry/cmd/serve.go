package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/engine"
	mcpserver "github.com/quarrylabs/quarry/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve search over MCP (stdio)",
		Long: `Serve exposes the index to MCP clients over stdio, with search_code
and index_status tools. By default it also watches the workspace so
results stay current; --no-watch serves the existing index as-is.

Stdout carries MCP traffic; logs go to the data directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			eng, err := engine.Open(ctx, workspaceRoot)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			if noWatch {
				if _, err := eng.Index(ctx); err != nil {
					return err
				}
			} else {
				go func() {
					if err := eng.Watch(ctx); err != nil {
						slog.Error("watch stopped", slog.String("error", err.Error()))
					}
				}()
			}

			srv, err := mcpserver.NewServer(eng)
			if err != nil {
				return err
			}
			return srv.Serve(ctx, eng.Config().Server.Transport)
		},
	}

	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Serve the existing index without following file changes")
	return cmd
}
