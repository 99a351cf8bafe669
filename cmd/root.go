// Package cmd wires the command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Parley - streaming chat relay with durable sessions",
	Long: `Parley is a session-scoped chat relay. It accepts chat messages over
HTTP, streams model responses back as server-sent events, and persists
each completed exchange so conversations survive restarts.

Running parley without a subcommand starts the HTTP server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
