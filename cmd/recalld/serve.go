package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/recalld/internal/http"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the recalld HTTP API until SIGINT or SIGTERM.

Configuration is read from the config file and RECALLD_* environment
variables, e.g. RECALLD_SERVER_HTTP_PORT=9292.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runServe(ctx, opts.configPath)
		},
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// runServe starts the HTTP server and blocks until ctx is cancelled.
func runServe(ctx context.Context, configPath string) error {
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.close(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
		}
	}()

	zl := a.logger.Underlying()
	srv, err := httpserver.NewServer(a.svc, zl, &httpserver.Config{
		Host:           a.cfg.Server.Host,
		Port:           a.cfg.Server.Port,
		DefaultTopK:    a.cfg.Knowledge.DefaultTopK,
		RateLimitRPS:   a.cfg.Server.RateLimitRPS,
		RateLimitBurst: a.cfg.Server.RateLimitBurst,
		Version:        version,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	a.logger.Info(ctx, "server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://%s/health", a.cfg.Server.Addr())),
		zap.String("metrics_endpoint", "/metrics"),
		zap.Duration("shutdown_timeout", a.cfg.Server.ShutdownTimeout))

	if err := srv.Start(ctx, a.cfg.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	a.logger.Info(ctx, "server shutdown complete")
	return nil
}
