package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/engine"
	"github.com/quarrylabs/quarry/internal/output"
	"github.com/quarrylabs/quarry/internal/search"
)

type searchOptions struct {
	limit  int
	dir    string
	format string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed codebase",
		Long: `Search embeds the query and returns the nearest indexed chunks as
ranked snippets. When the embedding provider is unavailable, results
come from keyword matching and are tagged [lexical].

Examples:
  quarry search "authentication middleware"
  quarry search "parse config" --dir internal --limit 5
  quarry search "error handling" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			eng, err := engine.Open(cmd.Context(), workspaceRoot)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			results, err := eng.Search(cmd.Context(), query, opts.limit, opts.dir)
			if err != nil {
				return err
			}

			return renderResults(cmd, results, opts.format)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.dir, "dir", "d", "", "Restrict results to a directory prefix")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func renderResults(cmd *cobra.Command, results []search.Result, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "text":
		output.New(cmd.OutOrStdout()).Results(results)
		return nil
	default:
		return fmt.Errorf("unknown format: %s (supported: text, json)", format)
	}
}
