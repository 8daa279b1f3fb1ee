// Package logging wraps zap for the recalld binaries.
//
// Library packages take a plain *zap.Logger (Logger.Underlying) and default
// to zap.NewNop(); only the process boundaries (HTTP, MCP, CLI) use the
// context-aware methods here, which append trace_id/span_id from the active
// OpenTelemetry span plus the session and request ids stored in ctx.
//
// Output goes to stderr by default so the MCP stdio transport keeps stdout
// for protocol frames.
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//	logger.Info(ctx, "patterns reloaded", zap.Int("count", n))
//
// Sampling applies below Error; errors are never sampled. TestLogger
// records entries with zaptest/observer for assertions.
package logging
