package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/recall"
)

// Server is an MCP server backed by a recall.Service.
type Server struct {
	mcp         *mcp.Server
	svc         *recall.Service
	registry    *ToolRegistry
	metrics     *Metrics
	logger      *zap.Logger
	defaultTopK int
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "recalld")
	Name    string
	Version string
	Logger  *zap.Logger
	// Meter overrides the global meter for tool metrics.
	Meter metric.Meter
	// DefaultTopK applies when a tool call omits top_k (default: 5).
	DefaultTopK int
}

// DefaultConfig returns the defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:        "recalld",
		Version:     "dev",
		Logger:      zap.NewNop(),
		DefaultTopK: 5,
	}
}

// NewServer creates an MCP server and registers every tool.
func NewServer(cfg *Config, svc *recall.Service) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if svc == nil {
		return nil, fmt.Errorf("recall service is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "recalld"
	}
	if cfg.DefaultTopK < 1 {
		cfg.DefaultTopK = 5
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		svc:         svc,
		registry:    NewToolRegistry(),
		metrics:     NewMetrics(cfg.Meter, cfg.Logger),
		logger:      cfg.Logger,
		defaultTopK: cfg.DefaultTopK,
	}
	s.registerTools()
	return s, nil
}

// MCP returns the underlying SDK server, e.g. to connect other transports.
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

// Registry returns the tool registry.
func (s *Server) Registry() *ToolRegistry {
	return s.registry
}

// Run serves on the stdio transport until ctx is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport", zap.Int("tools", s.registry.Count()))
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// toolFunc is a tool body: it returns the structured output and a one-line
// summary for the text content.
type toolFunc[In, Out any] func(ctx context.Context, args In) (Out, string, error)

// addTool registers meta with the registry and the SDK server and wraps fn
// with metrics and session-aware logging.
func addTool[In, Out any](s *Server, meta *ToolMetadata, fn toolFunc[In, Out]) {
	s.registry.Register(meta)
	name := meta.Name

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        name,
		Description: meta.Description,
	}, func(ctx context.Context, req *mcp.CallToolRequest, args In) (*mcp.CallToolResult, Out, error) {
		if req != nil && req.Session != nil {
			ctx = logging.WithSessionID(ctx, req.Session.ID())
		}

		start := time.Now()
		s.metrics.IncrementActive(ctx, name)
		out, summary, err := fn(ctx, args)
		s.metrics.DecrementActive(ctx, name)
		s.metrics.RecordInvocation(ctx, name, time.Since(start), err)

		if err != nil {
			s.logger.Debug("tool call failed", zap.String("tool", name), zap.Error(err))
			var zero Out
			return nil, zero, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: summary}},
		}, out, nil
	})
}
