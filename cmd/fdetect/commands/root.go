package commands

import (
	"github.com/spf13/cobra"
)

var (
	// dbPath is the path to the SQLite database.
	dbPath string

	// configFile is an optional env file loaded before the environment.
	configFile string

	// outputFormat controls output format (text, json).
	outputFormat string
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "fdetect",
	Short: "Follow-back detection engine",
	Long: `fdetect probes whether users follow you back by issuing a real
follow through the live session, checking the refreshed friend list, and
reverting the follow afterward.

The engine never talks to the platform directly: it intercepts and rewrites
the network calls the page itself makes, so every probe carries authentic
session credentials.`,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags.
	rootCmd.PersistentFlags().StringVar(
		&dbPath, "db", "",
		"Path to SQLite database (default: ~/.follower-detector/detector.db)",
	)
	rootCmd.PersistentFlags().StringVar(
		&configFile, "config", "",
		"Env file to load settings from (default: ./.env)",
	)
	rootCmd.PersistentFlags().StringVar(
		&outputFormat, "format", "text",
		"Output format: text, json",
	)

	// Add subcommands.
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(failedCmd)
	rootCmd.AddCommand(friendsCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(versionCmd)
}
