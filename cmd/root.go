// Package cmd defines the CLI commands for the fetchwright executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetchwright",
		Short: "A compliance-first collector for public web and API data.",
		Long: `fetchwright collects public data from heterogeneous sources while
enforcing robots.txt compliance, per-domain politeness, bounded retries
and a full per-request audit trail. Each run leaves a request ledger,
raw response bodies for downstream parsers, and a run manifest.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: built-in defaults plus FETCHWRIGHT_* env)")

	cmd.AddCommand(newCollectCmd())
	return cmd
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
