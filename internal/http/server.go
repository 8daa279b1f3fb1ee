// Package http provides the recalld JSON API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/recall"
)

// maxBodySize bounds request bodies; embeddings batches are the largest payloads.
const maxBodySize = "8M"

// Server provides HTTP endpoints for recalld.
type Server struct {
	echo    *echo.Echo
	svc     *recall.Service
	logger  *zap.Logger
	config  *Config
	metrics *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host           string
	Port           int
	DefaultTopK    int
	RateLimitRPS   float64 // 0 disables rate limiting
	RateLimitBurst int
	Version        string
}

func defaultConfig() *Config {
	return &Config{
		Host:           "localhost",
		Port:           9191,
		DefaultTopK:    5,
		RateLimitRPS:   200,
		RateLimitBurst: 400,
	}
}

// NewServer creates a new HTTP server around svc.
func NewServer(svc *recall.Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = defaultConfig()
	}
	if cfg.DefaultTopK < 1 {
		cfg.DefaultTopK = 5
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = jsonErrorHandler(logger)

	s := &Server{
		echo:    e,
		svc:     svc,
		logger:  logger,
		config:  cfg,
		metrics: NewHTTPMetrics(logger),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(maxBodySize))
	e.Use(s.metrics.MetricsMiddleware())
	e.Use(s.requestLogger)
	if cfg.RateLimitRPS > 0 {
		e.Use(NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware())
	}

	s.registerRoutes()
	return s, nil
}

// requestLogger logs every request and attaches the request id to the
// request context for downstream log correlation.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		requestID := c.Response().Header().Get(echo.HeaderXRequestID)
		req := c.Request()
		c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), requestID)))

		err := next(c)
		if err != nil {
			// Resolve the status before logging it.
			c.Error(err)
		}

		s.logger.Info("http request",
			zap.String("method", req.Method),
			zap.String("uri", req.RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", requestID),
		)
		return nil
	}
}

// jsonErrorHandler renders errors as ErrorResponse.
func jsonErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		msg := http.StatusText(code)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			msg = fmt.Sprint(he.Message)
		} else {
			logger.Error("unhandled http error", zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, ErrorResponse{Error: msg})
		}
		if err != nil {
			logger.Warn("failed to write error response", zap.Error(err))
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")

	v1.POST("/knowledge/match", s.handleMatch)
	v1.GET("/knowledge/cache", s.handleCacheStats)
	v1.DELETE("/knowledge/cache", s.handleClearCache)

	v1.POST("/memory", s.handleAddMemory)
	v1.GET("/memory", s.handleListMemory)
	v1.DELETE("/memory", s.handleClearMemory)
	v1.POST("/memory/search", s.handleSearchMemory)
	v1.GET("/memory/clusters", s.handleMemoryClusters)
	v1.GET("/memory/:id", s.handleGetMemory)
	v1.DELETE("/memory/:id", s.handleRemoveMemory)

	v1.POST("/learning/update", s.handleTDUpdate)
	v1.GET("/learning/best-action", s.handleBestAction)
	v1.GET("/learning/q-table", s.handleExportQTable)
	v1.PUT("/learning/q-table", s.handleImportQTable)
	v1.DELETE("/learning/traces", s.handleResetTraces)
	v1.POST("/learning/reward", s.handleReward)

	v1.POST("/clusters", s.handleDetectClusters)
}

// Echo exposes the router so callers can mount extra routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start serves until ctx is cancelled, then shuts down gracefully within
// shutdownTimeout.
func (s *Server) Start(ctx context.Context, shutdownTimeout time.Duration) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
