// Package cli is the operator command line for the dispatch daemon. All
// commands talk to the daemon's HTTP API.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	daemonAddr string
	verbose    bool
)

// NewRootCommand creates the root command for the CLI
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lastmile",
		Short: "Last-mile dispatch CLI - Interact with the dispatch daemon",
		Long: `Last-mile dispatch CLI provides commands to plan and track delivery routes.
The CLI communicates with the daemon over its HTTP API.

Examples:
  lastmile optimize --orders ord-1,ord-2 --vehicles veh-1 --drivers drv-1 --depot 40.4168,-3.7038
  lastmile routes list --date 2026-08-25 --status active
  lastmile routes get <route-id>
  lastmile routes reoptimize <route-id> --reason "traffic jam on M-30"
  lastmile events --active-only
  lastmile simulate start --speed 10`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&daemonAddr, "addr", getDefaultAddr(),
		"Daemon HTTP address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable verbose output")

	// Add command groups
	rootCmd.AddCommand(NewOptimizeCommand())
	rootCmd.AddCommand(NewRoutesCommand())
	rootCmd.AddCommand(NewOrdersCommand())
	rootCmd.AddCommand(NewEventsCommand())
	rootCmd.AddCommand(NewSimulateCommand())
	rootCmd.AddCommand(NewHealthCommand())

	return rootCmd
}

// getDefaultAddr returns the default daemon address
func getDefaultAddr() string {
	if addr := os.Getenv("LASTMILE_ADDR"); addr != "" {
		return addr
	}
	return "http://127.0.0.1:8080"
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
