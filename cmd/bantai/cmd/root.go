// Package cmd provides the CLI commands for bantai.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bantai",
	Short: "Bantai - deterministic policy evaluation engine",
	Long: `Bantai evaluates a declarative policy document against an input
document and prints an explainable allow/deny verdict.

Commands:
  eval       Evaluate a policy document against an input document
  validate   Validate a policy document without evaluating it`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
