package config

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/recalld/internal/learning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "localhost:9191", cfg.Server.Addr())
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.False(t, cfg.Observability.EnableTelemetry)
	assert.Equal(t, "recalld", cfg.Observability.ServiceName)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 5*time.Minute, cfg.Knowledge.CacheTTL)
	assert.Equal(t, 1000, cfg.Knowledge.CacheMaxEntries)
	assert.Equal(t, 5, cfg.Knowledge.DefaultTopK)
	assert.Equal(t, 1000, cfg.Memory.Capacity)
	assert.Equal(t, learning.DefaultParams(), cfg.Learning.Params())
	assert.Equal(t, 3, cfg.Cluster.MinPoints)
	assert.InDelta(t, 0.3, cfg.Cluster.Epsilon, 1e-12)

	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server port"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "server port"},
		{"shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }, "shutdown timeout"},
		{"negative rps", func(c *Config) { c.Server.RateLimitRPS = -1 }, "rate_limit_rps"},
		{"burst without rps", func(c *Config) { c.Server.RateLimitBurst = 0 }, "rate_limit_burst"},
		{"telemetry without name", func(c *Config) {
			c.Observability.EnableTelemetry = true
			c.Observability.ServiceName = ""
		}, "service name"},
		{"bad protocol", func(c *Config) { c.Observability.Protocol = "thrift" }, "protocol"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging format"},
		{"cache ttl", func(c *Config) { c.Knowledge.CacheTTL = 0 }, "cache_ttl"},
		{"cache entries", func(c *Config) { c.Knowledge.CacheMaxEntries = 0 }, "cache_max_entries"},
		{"top k", func(c *Config) { c.Knowledge.DefaultTopK = 0 }, "default_top_k"},
		{"watch without path", func(c *Config) { c.Knowledge.Watch = true }, "patterns_path"},
		{"memory capacity", func(c *Config) { c.Memory.Capacity = 0 }, "memory capacity"},
		{"alpha", func(c *Config) { c.Learning.Alpha = 1.5 }, "alpha"},
		{"gamma", func(c *Config) { c.Learning.Gamma = -0.1 }, "gamma"},
		{"lambda", func(c *Config) { c.Learning.Lambda = 2 }, "lambda"},
		{"epsilon", func(c *Config) { c.Learning.Epsilon = -1 }, "epsilon"},
		{"q table size", func(c *Config) { c.Learning.MaxQTableSize = -1 }, "max_q_table_size"},
		{"clip range", func(c *Config) { c.Learning.RewardClipMin = 1 }, "reward_clip_min"},
		{"component scale", func(c *Config) {
			c.Learning.RewardComponents = []learning.RewardComponent{{Metric: "latency", Weight: 1, Scale: 0}}
		}, "scale"},
		{"min points", func(c *Config) { c.Cluster.MinPoints = 0 }, "min_points"},
		{"cluster epsilon", func(c *Config) { c.Cluster.Epsilon = 2.5 }, "cluster epsilon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfig_ValidateAllowsDisabledRateLimit(t *testing.T) {
	cfg := Default()
	cfg.Server.RateLimitRPS = 0
	cfg.Server.RateLimitBurst = 0
	assert.NoError(t, cfg.Validate())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("15s")))
	assert.Equal(t, 15*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "15s", string(text))
}
