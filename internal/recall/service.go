// Package recall wires the knowledge engine, working memory, TD(λ) learner
// and cluster engine into one service that is safe for concurrent use.
//
// The knowledge engine is read-mostly and is swapped atomically on reload.
// Working memory and the learner mutate on every call (searches refresh
// access bookkeeping) and are fenced by their own mutexes.
package recall

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/cluster"
	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/knowledge"
	"github.com/fyrsmithlabs/recalld/internal/learning"
	"github.com/fyrsmithlabs/recalld/internal/memory"
)

const instrumentationName = "github.com/fyrsmithlabs/recalld/internal/recall"

// Config holds the constructor arguments of every component.
type Config struct {
	Patterns       []knowledge.Pattern
	EngineOptions  []knowledge.EngineOption
	MemoryCapacity int

	Learning         learning.Params
	MaxQTableSize    int
	RewardComponents []learning.RewardComponent
	RewardClipMin    float64
	RewardClipMax    float64

	ClusterMinPoints int
	ClusterEpsilon   float64
}

// ConfigFromApp maps application configuration onto service configuration.
// Patterns are loaded separately by the caller.
func ConfigFromApp(c *config.Config) Config {
	return Config{
		EngineOptions: []knowledge.EngineOption{
			knowledge.WithCacheTTL(c.Knowledge.CacheTTL),
			knowledge.WithCacheMaxEntries(c.Knowledge.CacheMaxEntries),
		},
		MemoryCapacity:   c.Memory.Capacity,
		Learning:         c.Learning.Params(),
		MaxQTableSize:    c.Learning.MaxQTableSize,
		RewardComponents: c.Learning.RewardComponents,
		RewardClipMin:    c.Learning.RewardClipMin,
		RewardClipMax:    c.Learning.RewardClipMax,
		ClusterMinPoints: c.Cluster.MinPoints,
		ClusterEpsilon:   c.Cluster.Epsilon,
	}
}

// DefaultConfig returns a Config with every component at its defaults and
// no patterns.
func DefaultConfig() Config {
	return ConfigFromApp(config.Default())
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger. It is also handed to every component.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithMeter overrides the global meter.
func WithMeter(m metric.Meter) Option {
	return func(s *Service) { s.meter = m }
}

// Service is the concurrent facade over the core components.
type Service struct {
	engine     atomic.Pointer[knowledge.Engine]
	engineOpts []knowledge.EngineOption

	memMu  sync.Mutex
	memory *memory.WorkingMemory

	learnMu sync.Mutex
	learner *learning.TDLearner

	rewardMu sync.RWMutex
	reward   *learning.RewardCalculator

	clusters *cluster.Engine

	logger *zap.Logger
	tracer trace.Tracer
	meter  metric.Meter

	operations metric.Int64Counter
	duration   metric.Float64Histogram
	reloads    metric.Int64Counter
}

// NewService builds every component from cfg.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	s := &Service{
		logger: zap.NewNop(),
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.engineOpts = append(append([]knowledge.EngineOption(nil), cfg.EngineOptions...), knowledge.WithLogger(s.logger))
	engine, err := knowledge.NewEngine(cfg.Patterns, s.engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("building knowledge engine: %w", err)
	}
	s.engine.Store(engine)

	s.memory = memory.New(cfg.MemoryCapacity, memory.WithLogger(s.logger))
	s.learner = learning.NewTDLearner(cfg.Learning,
		learning.WithMaxQTableSize(cfg.MaxQTableSize),
		learning.WithLogger(s.logger),
	)
	s.reward, err = learning.NewRewardCalculator(cfg.RewardComponents, cfg.RewardClipMin, cfg.RewardClipMax)
	if err != nil {
		return nil, fmt.Errorf("building reward calculator: %w", err)
	}
	s.clusters = cluster.New(cfg.ClusterMinPoints, cfg.ClusterEpsilon)

	if err := s.initMetrics(); err != nil {
		// Metrics are optional; the service works without them.
		s.logger.Warn("recall metrics disabled", zap.Error(err))
	}

	return s, nil
}

func (s *Service) initMetrics() error {
	var err error

	s.operations, err = s.meter.Int64Counter(
		"recalld.operations_total",
		metric.WithDescription("Service operations by name"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create operations counter: %w", err)
	}

	s.duration, err = s.meter.Float64Histogram(
		"recalld.operation.duration_seconds",
		metric.WithDescription("Service operation latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1),
	)
	if err != nil {
		return fmt.Errorf("failed to create duration histogram: %w", err)
	}

	s.reloads, err = s.meter.Int64Counter(
		"recalld.pattern_reloads_total",
		metric.WithDescription("Pattern catalog reloads by result"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create reloads counter: %w", err)
	}

	return nil
}

// start opens a span and returns a func that ends it and records metrics.
func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span, func()) {
	ctx, span := s.tracer.Start(ctx, "recall."+op, trace.WithAttributes(attrs...))
	begin := time.Now()
	return ctx, span, func() {
		opAttr := metric.WithAttributes(attribute.String("operation", op))
		if s.operations != nil {
			s.operations.Add(ctx, 1, opAttr)
		}
		if s.duration != nil {
			s.duration.Record(ctx, time.Since(begin).Seconds(), opAttr)
		}
		span.End()
	}
}

// Engine returns the current knowledge engine.
func (s *Service) Engine() *knowledge.Engine {
	return s.engine.Load()
}

// Stats is a point-in-time summary used by health endpoints.
type Stats struct {
	Patterns       int                  `json:"patterns"`
	Cache          knowledge.CacheStats `json:"cache"`
	Memories       int                  `json:"memories"`
	MemoryCapacity int                  `json:"memory_capacity"`
	QTableSize     int                  `json:"q_table_size"`
	TraceCount     int                  `json:"trace_count"`
	Updates        int64                `json:"updates"`
}

// Stats returns component sizes.
func (s *Service) Stats(ctx context.Context) Stats {
	engine := s.Engine()
	st := Stats{
		Patterns: len(engine.Patterns()),
		Cache:    engine.CacheStats(),
	}

	s.memMu.Lock()
	st.Memories = s.memory.Len()
	st.MemoryCapacity = s.memory.Capacity()
	s.memMu.Unlock()

	s.learnMu.Lock()
	st.QTableSize = s.learner.QTableSize()
	st.TraceCount = s.learner.TraceCount()
	st.Updates = s.learner.UpdateCount()
	s.learnMu.Unlock()

	return st
}
