package main

import (
	"context"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for tchunt.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tchunt",
		Short: "Find encrypted containers by their entropy",
		Long: `tchunt scans a directory tree for files that look like encrypted containers.

A file is reported when it is large enough, its size is a multiple of the
sector size, and the entropy of its first and last bytes is close to the
maximum of 8 bits per byte. Files with a recognizable signature (archives,
media, images) are hidden unless --show-known is given.

Findings are printed to standard output, one per line. Logs go to
standard error.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command. Errors are printed by fang.
func Execute(ctx context.Context) error {
	return fang.Execute(ctx, NewRootCmd(),
		fang.WithVersion(getVersion()),
		fang.WithCommit(getCommit()),
	)
}
