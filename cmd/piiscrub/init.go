package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/piiscrub/internal/config"
)

//go:embed templates/piiscrub.yaml
var configTemplate embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new piiscrub configuration file",
		Long: `Initialize creates a new .piiscrub configuration file in the current directory.

The generated file includes:
- The Zendesk instance and agent settings
- Detection, redaction and AWS settings with their defaults
- Documentation for all available options

The API token is never written to the file. It is read from the
environment variable named by zendesk.api_token_env.

Examples:
  # Create .piiscrub in current directory
  piiscrub init

  # Create the file in the XDG config directory
  piiscrub init --xdg

  # Force overwrite existing file
  piiscrub init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")
	cmd.Flags().Bool("xdg", false,
		"Write to the XDG config directory instead of --output")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	xdgDir, err := cmd.Flags().GetBool("xdg")
	if err != nil {
		return err
	}
	if xdgDir {
		outputPath = filepath.Join(config.XDGConfigDir(), config.XDGConfigFile)
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/piiscrub.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to configure:")
	fmt.Fprintln(out, "  - The Zendesk URL and agent email")
	fmt.Fprintln(out, "  - The AWS region or Cognito identity pool for Comprehend")
	fmt.Fprintf(out, "\nThen export the API token: export %s=...\n", config.DefaultAPITokenEnv)

	return nil
}
