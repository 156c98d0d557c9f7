package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the weeknotes application
var rootCmd = &cobra.Command{
	Use:   "weeknotes",
	Short: "Backend for the weeknotes weekly planner",
	Long: `weeknotes is the backend for a personal weekly planner: meetings, notes
and tasks laid out on a Monday-to-Friday grid, stored in Postgres.

It optionally syncs meeting notes from Granola via OAuth 2.0 and MCP,
matching remote notes against local meetings by title and calendar day.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "weeknotes version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
