// Package config provides configuration loading for recalld.
//
// Configuration is assembled from hardcoded defaults, an optional YAML file
// and RECALLD_* environment variables (see Load). The values only supply
// constructor arguments; the core packages never read configuration.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/recalld/internal/cluster"
	"github.com/fyrsmithlabs/recalld/internal/knowledge"
	"github.com/fyrsmithlabs/recalld/internal/learning"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds the complete recalld configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Logging       LoggingConfig       `koanf:"logging"`
	Knowledge     KnowledgeConfig     `koanf:"knowledge"`
	Memory        MemoryConfig        `koanf:"memory"`
	Learning      LearningConfig      `koanf:"learning"`
	Cluster       ClusterConfig       `koanf:"cluster"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimitRPS    float64       `koanf:"rate_limit_rps"`   // 0 disables rate limiting
	RateLimitBurst  int           `koanf:"rate_limit_burst"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	Endpoint        string `koanf:"endpoint"`
	Protocol        string `koanf:"protocol"` // "grpc" or "http/protobuf"
	Insecure        bool   `koanf:"insecure"`
}

// LoggingConfig selects the log level and encoder.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// KnowledgeConfig configures the knowledge engine and its pattern catalog.
type KnowledgeConfig struct {
	PatternsPath    string        `koanf:"patterns_path"`
	Watch           bool          `koanf:"watch"`
	CacheTTL        time.Duration `koanf:"cache_ttl"`
	CacheMaxEntries int           `koanf:"cache_max_entries"`
	DefaultTopK     int           `koanf:"default_top_k"`
}

// MemoryConfig configures working memory.
type MemoryConfig struct {
	Capacity int `koanf:"capacity"`
}

// LearningConfig configures the TD(λ) learner and reward shaping.
type LearningConfig struct {
	Alpha            float64                    `koanf:"alpha"`
	Gamma            float64                    `koanf:"gamma"`
	Lambda           float64                    `koanf:"lambda"`
	Epsilon          float64                    `koanf:"epsilon"`
	MaxQTableSize    int                        `koanf:"max_q_table_size"` // 0 = unbounded
	RewardClipMin    float64                    `koanf:"reward_clip_min"`
	RewardClipMax    float64                    `koanf:"reward_clip_max"`
	RewardComponents []learning.RewardComponent `koanf:"reward_components"`
}

// Params converts the section into learner parameters.
func (l LearningConfig) Params() learning.Params {
	return learning.Params{
		Alpha:   l.Alpha,
		Gamma:   l.Gamma,
		Lambda:  l.Lambda,
		Epsilon: l.Epsilon,
	}
}

// ClusterConfig configures density clustering.
type ClusterConfig struct {
	MinPoints int     `koanf:"min_points"`
	Epsilon   float64 `koanf:"epsilon"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	params := learning.DefaultParams()
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9191,
			ShutdownTimeout: 10 * time.Second,
			RateLimitRPS:    200,
			RateLimitBurst:  400,
		},
		Observability: ObservabilityConfig{
			EnableTelemetry: false,
			ServiceName:     "recalld",
			Endpoint:        "localhost:4317",
			Protocol:        "grpc",
			Insecure:        true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Knowledge: KnowledgeConfig{
			CacheTTL:        knowledge.DefaultCacheTTL,
			CacheMaxEntries: knowledge.DefaultCacheMaxEntries,
			DefaultTopK:     5,
		},
		Memory: MemoryConfig{
			Capacity: 1000,
		},
		Learning: LearningConfig{
			Alpha:         params.Alpha,
			Gamma:         params.Gamma,
			Lambda:        params.Lambda,
			Epsilon:       params.Epsilon,
			RewardClipMin: -1,
			RewardClipMax: 1,
		},
		Cluster: ClusterConfig{
			MinPoints: cluster.DefaultMinPoints,
			Epsilon:   cluster.DefaultEpsilon,
		},
	}
}

// Validate validates the configuration.
//
// Returns an error wrapping ErrInvalidConfig if:
//   - Server port is not between 1 and 65535
//   - Shutdown timeout is not positive
//   - Service name is empty (when telemetry is enabled)
//   - Any learning rate is outside [0, 1] or the reward clip range is empty
//   - Cluster epsilon is outside [0, 2] or min_points < 1
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d (must be 1-65535)", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown timeout must be positive", ErrInvalidConfig)
	}
	if c.Server.RateLimitRPS < 0 {
		return fmt.Errorf("%w: rate_limit_rps must be >= 0", ErrInvalidConfig)
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("%w: rate_limit_burst must be >= 1 when rate limiting is enabled", ErrInvalidConfig)
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return fmt.Errorf("%w: service name required when telemetry is enabled", ErrInvalidConfig)
	}
	switch c.Observability.Protocol {
	case "", "grpc", "http/protobuf":
	default:
		return fmt.Errorf("%w: unknown telemetry protocol %q", ErrInvalidConfig, c.Observability.Protocol)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: logging format must be 'json' or 'console', got %q", ErrInvalidConfig, c.Logging.Format)
	}

	if c.Knowledge.CacheTTL <= 0 {
		return fmt.Errorf("%w: knowledge cache_ttl must be positive", ErrInvalidConfig)
	}
	if c.Knowledge.CacheMaxEntries < 1 {
		return fmt.Errorf("%w: knowledge cache_max_entries must be >= 1", ErrInvalidConfig)
	}
	if c.Knowledge.DefaultTopK < 1 {
		return fmt.Errorf("%w: knowledge default_top_k must be >= 1", ErrInvalidConfig)
	}
	if c.Knowledge.Watch && c.Knowledge.PatternsPath == "" {
		return fmt.Errorf("%w: knowledge watch requires patterns_path", ErrInvalidConfig)
	}

	if c.Memory.Capacity < 1 {
		return fmt.Errorf("%w: memory capacity must be >= 1, got %d", ErrInvalidConfig, c.Memory.Capacity)
	}

	rates := []struct {
		name  string
		value float64
	}{
		{"alpha", c.Learning.Alpha},
		{"gamma", c.Learning.Gamma},
		{"lambda", c.Learning.Lambda},
		{"epsilon", c.Learning.Epsilon},
	}
	for _, r := range rates {
		if r.value < 0 || r.value > 1 {
			return fmt.Errorf("%w: learning %s must be in [0, 1], got %g", ErrInvalidConfig, r.name, r.value)
		}
	}
	if c.Learning.MaxQTableSize < 0 {
		return fmt.Errorf("%w: learning max_q_table_size must be >= 0", ErrInvalidConfig)
	}
	if c.Learning.RewardClipMin >= c.Learning.RewardClipMax {
		return fmt.Errorf("%w: reward_clip_min (%g) must be below reward_clip_max (%g)",
			ErrInvalidConfig, c.Learning.RewardClipMin, c.Learning.RewardClipMax)
	}
	for _, rc := range c.Learning.RewardComponents {
		if rc.Metric == "" {
			return fmt.Errorf("%w: reward component without metric", ErrInvalidConfig)
		}
		if rc.Scale <= 0 {
			return fmt.Errorf("%w: reward component %q scale must be positive", ErrInvalidConfig, rc.Metric)
		}
	}

	if c.Cluster.MinPoints < 1 {
		return fmt.Errorf("%w: cluster min_points must be >= 1", ErrInvalidConfig)
	}
	if c.Cluster.Epsilon < 0 || c.Cluster.Epsilon > 2 {
		return fmt.Errorf("%w: cluster epsilon must be in [0, 2], got %g", ErrInvalidConfig, c.Cluster.Epsilon)
	}

	return nil
}
