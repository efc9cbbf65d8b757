// Package main provides the entry point for the ballast CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ballast-dev/ballast/cmd/ballast/commands"
	"github.com/ballast-dev/ballast/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "ballast",
		Short: "Ballast - resource-bounded execution core",
		Long: `Ballast runs operations over large file sets and logs inside explicit
resource bounds: circuit breaking, concurrency admission, memory guarding,
cooperative CPU yielding, priority chunking, and bounded result delivery.

Commands:
  run       Run an operation over files or a log
  plan      Show the chunk plan for a file set
  mcp       Start the MCP server on stdio`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewPlanCommand())
	rootCmd.AddCommand(commands.NewMCPCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "ballast %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
