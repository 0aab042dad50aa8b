// Package cmd provides the CLI commands for Quarry.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/logging"
	"github.com/quarrylabs/quarry/pkg/version"
)

var (
	workspaceRoot string
	debugMode     bool
	logCleanup    func()
)

// Execute runs the CLI with signal-aware context cancellation.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd creates the root command for the quarry CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarry",
		Short: "Local code indexing and semantic search",
		Long: `Quarry maintains an incremental embedding index of a codebase and
answers similarity and keyword queries against it.

Run 'quarry index' once, 'quarry watch' to follow changes, and
'quarry search' or 'quarry serve' (MCP) to query.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("quarry version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&workspaceRoot, "root", "C", ".", "Workspace root directory")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging, mirrored to stderr")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if logCleanup != nil {
			logCleanup()
		}
	}

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupLogging routes structured logs to a rotated file under the data
// directory, keeping stdout free for results and MCP traffic.
func setupLogging(*cobra.Command, []string) error {
	root, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return err
	}

	cfg := logging.DefaultConfig(config.DataDir(root))
	if debugMode {
		cfg.Level = "debug"
		cfg.WriteToStderr = true
	}

	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		return err
	}
	logCleanup = cleanup
	return nil
}
