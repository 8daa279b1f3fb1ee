package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/recalld/internal/mcp"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run as an MCP server on stdio",
		Long: `Run recalld as a Model Context Protocol server on stdin/stdout.

Logs go to stderr so they never interleave with protocol messages.

Example MCP client entry:
  {"command": "recalld", "args": ["mcp"]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runMCP(ctx, opts.configPath)
		},
	}
}

func runMCP(ctx context.Context, configPath string) error {
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
		}
	}()

	srv, err := mcp.NewServer(&mcp.Config{
		Name:        "recalld",
		Version:     version,
		Logger:      a.logger.Underlying(),
		DefaultTopK: a.cfg.Knowledge.DefaultTopK,
	}, a.svc)
	if err != nil {
		return fmt.Errorf("failed to create mcp server: %w", err)
	}
	return srv.Run(ctx)
}
