package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var serverAddr string

var rootCmd = &cobra.Command{
	Use:   "tickstream-cli",
	Short: "Tickstream CLI tool",
	Long: `Tickstream CLI is a command-line companion for a running tickstream server.

Available commands:
  ops      List the operations exposed by a server
  tap      Subscribe to a route and stream updates to stdout

Use "tickstream-cli [command] --help" for more information about a specific command.`,
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:8080", "server host:port")
}
