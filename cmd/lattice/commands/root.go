// Package commands provides the CLI commands for lattice.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lattice-dev/lattice/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	logLevel  string
	logPretty bool
)

var rootCmd = &cobra.Command{
	Use:   "lattice",
	Short: "Lattice - agent session runtime server",
	Long: `Lattice runs long-lived AI agent sessions: it keeps conversation
history consistent, plans what history reaches the model, and manages
the shell processes, sub-agent tasks, and terminal sessions that each
session spawns.

Run 'lattice serve' to start the HTTP server.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logging.Config{
			Level:  logging.ParseLevel(logLevel),
			Pretty: logPretty,
		})
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "log-pretty", false, "Human-readable console logging")

	rootCmd.SetVersionTemplate(fmt.Sprintf("lattice %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
