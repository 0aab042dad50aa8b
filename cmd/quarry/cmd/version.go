package cmd

import (
	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/output"
	"github.com/quarrylabs/quarry/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			output.New(cmd.OutOrStdout()).Statusf("", "quarry version %s", version.Version)
		},
	}
}
