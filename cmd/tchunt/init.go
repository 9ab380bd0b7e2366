package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/tchunt/internal/config"
)

//go:embed templates/tchunt.yaml
var configTemplate embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a tchunt profile file",
		Long: `Init writes a commented profile file with the default scan settings.

The file is never read automatically. Pass it to a scan with --config:

  tchunt scan --config ~/.config/tchunt/tchunt.yaml /srv

Examples:
  # Create the profile in the XDG config directory
  tchunt init

  # Create the profile at a specific path
  tchunt init -o ./tchunt.yaml

  # Force overwrite existing file
  tchunt init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP(config.FlagOutput, "o", config.DefaultConfigPath(),
		"Output file path for the profile")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing profile file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString(config.FlagOutput)
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("profile file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/tchunt.yaml")
	if err != nil {
		return fmt.Errorf("failed to read profile template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write profile file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created profile file: %s\n", outputPath)
	fmt.Fprintln(out, "\nUse it with:")
	fmt.Fprintf(out, "  tchunt scan --config %s <directory>\n", outputPath)

	return nil
}
