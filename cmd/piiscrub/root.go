package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for piiscrub.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "piiscrub",
		Short: "Detect and redact personal data in Zendesk tickets",
		Long: `piiscrub reads the comments of a Zendesk ticket, detects personal data
with Amazon Comprehend and requests redaction of the entities you approve.

Detection never changes a ticket. Redaction is only requested for the exact
text you pass to the redact command, in every comment where it occurs.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .piiscrub in current or home directory)")

	cmd.AddCommand(NewDetectCmd())
	cmd.AddCommand(NewRedactCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewEvaluateCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
