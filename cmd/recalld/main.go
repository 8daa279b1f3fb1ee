// Package main implements the recalld CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "recalld",
		Short: "Pattern matching, working memory and TD(λ) learning for agents",
		Long: `recalld serves a knowledge pattern engine, a bounded embedding memory,
a TD(λ) learner and a density clusterer over HTTP and MCP.

Examples:
  # Run the HTTP API
  recalld serve --config ~/.config/recalld/config.yaml

  # Run as an MCP server on stdio
  recalld mcp

  # Match a query against a catalog without a server
  recalld match --patterns patterns.yaml --text "rust compile error"`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/recalld/config.yaml)")

	root.AddCommand(
		newServeCmd(opts),
		newMCPCmd(opts),
		newMatchCmd(),
		newClusterCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "recalld by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}
