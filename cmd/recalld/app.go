package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/catalog"
	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/knowledge"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/recall"
	"github.com/fyrsmithlabs/recalld/internal/telemetry"
)

// app holds the process-wide dependencies shared by serve and mcp.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	svc       *recall.Service
	watcher   *catalog.Watcher
}

// newApp loads configuration and builds the logger, telemetry, pattern
// catalog and recall service. The catalog watcher is started when enabled.
func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logCfg, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to configure logger: %w", err)
	}
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zl := logger.Underlying()

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Observability, version), telemetry.WithLogger(zl))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, telemetry: tel}

	var patterns []knowledge.Pattern
	if path := cfg.Knowledge.PatternsPath; path != "" {
		patterns, err = catalog.Load(path)
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("failed to load pattern catalog: %w", err)
		}
	}

	rcfg := recall.ConfigFromApp(cfg)
	rcfg.Patterns = patterns
	rcfg.EngineOptions = append(rcfg.EngineOptions, knowledge.WithMetrics(knowledge.NewMetrics()))
	a.svc, err = recall.NewService(rcfg, recall.WithLogger(zl))
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to initialize recall service: %w", err)
	}

	logger.Info(ctx, "recall service initialized",
		zap.Int("patterns", len(patterns)),
		zap.Int("memory_capacity", cfg.Memory.Capacity),
		zap.Bool("telemetry", tel.IsEnabled()))

	if cfg.Knowledge.Watch {
		a.watcher, err = catalog.NewWatcher(cfg.Knowledge.PatternsPath, a.svc.ReloadPatterns, zl)
		if err == nil {
			err = a.watcher.Start(ctx)
		}
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("failed to watch pattern catalog: %w", err)
		}
	}

	return a, nil
}

// close releases everything newApp acquired.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync() // Best-effort sync on shutdown
	}
	return errors.Join(errs...)
}
