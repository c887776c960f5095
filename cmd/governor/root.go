package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "governor",
	Short: "Fara Governor - execution governor for autonomous agents",
	Long: `Fara Governor sits between autonomous agents and the outside world.

Agents submit proposed actions; the governor provides:
  - Policy-based allow / deny / require_approval decisions
  - Single-use approval tokens for human-in-the-loop review
  - Optional server-side execution with timeouts and concurrency limits
  - An append-only, optionally hash-chained audit trail per action
  - A live event stream for dashboards and monitors`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults apply when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
