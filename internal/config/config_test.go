package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "")
	t.Setenv("HOST", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)

	assert.Equal(t, "data", cfg.Data.Dir)
	assert.Equal(t, filepath.Join("data", "consolidated"), cfg.Data.ConsolidatedDir())
	assert.Equal(t, filepath.Join("data", "pipeline_runs"), cfg.Data.PipelineRunsDir())

	assert.True(t, cfg.Watcher.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.Watcher.Debounce)
	assert.False(t, cfg.RateLimiter.Enabled)
	assert.Equal(t, 9090, cfg.Metrics.Port)

	assert.Equal(t, "gpt-5-nano", cfg.LLM.Model)
	assert.Equal(t, 5, cfg.LLM.MaxAttempts)
	assert.Equal(t, []string{"main", "master"}, cfg.Publish.Branches)
}

func TestLoad_PlatformEnvWins(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PLANBOARD_SERVER_PORT", "9000")
	t.Setenv("PLANBOARD_SERVER_HOST", "10.0.0.1")
	t.Setenv("PORT", "5000")
	t.Setenv("HOST", "127.0.0.1")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:5000", cfg.Server.Addr())
}

func TestLoad_PlatformPortOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("PORT", "7000")
	t.Setenv("HOST", "")
	path := filepath.Join(dir, "dashboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8081\n  host: 10.1.1.1\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.1.1.1:7000", cfg.Server.Addr())
}

func TestLoad_InvalidPlatformPort(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "eighty")

	_, err := Load("")
	assert.ErrorContains(t, err, "invalid PORT")
}

func TestLoad_MetricsPortCollisionDisablesMetrics(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("HOST", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.False(t, cfg.Metrics.Enabled)
	require.Len(t, cfg.Warnings, 1)
	assert.Contains(t, cfg.Warnings[0], "metrics listener disabled")
}

func TestLoad_PrefixedEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "")
	t.Setenv("PLANBOARD_SERVER_PORT", "9000")
	t.Setenv("PLANBOARD_CACHE_TTL", "5m")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "sk-test", cfg.LLM.AnthropicAPIKey)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "dashboard.yaml")
	content := `
server:
  port: 8181
data:
  dir: /srv/data
pipeline:
  carriers: [telus, bell]
  concurrency: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, "/srv/data", cfg.Data.Dir)
	assert.Equal(t, []string{"telus", "bell"}, cfg.Pipeline.Carriers)
	assert.Equal(t, 2, cfg.Pipeline.Concurrency)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8080, ShutdownTimeout: time.Second},
			Data:     DataConfig{Dir: "data"},
			Cache:    CacheConfig{MaxEntries: 1},
			Watcher:  WatcherConfig{Enabled: true, Debounce: time.Millisecond},
			Metrics:  MetricsConfig{Enabled: true, Port: 9090},
			Pipeline: PipelineConfig{Concurrency: 1},
			LLM:      LLMConfig{MaxAttempts: 1},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"no shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }},
		{"no data dir", func(c *Config) { c.Data.Dir = "" }},
		{"no cache entries", func(c *Config) { c.Cache.MaxEntries = 0 }},
		{"no debounce", func(c *Config) { c.Watcher.Debounce = 0 }},
		{"rate limiter rps", func(c *Config) { c.RateLimiter = RateLimiterConfig{Enabled: true, BurstSize: 1} }},
		{"rate limiter burst", func(c *Config) { c.RateLimiter = RateLimiterConfig{Enabled: true, RequestsPerSecond: 1} }},
		{"metrics port out of range", func(c *Config) { c.Metrics.Port = 70000 }},
		{"no concurrency", func(c *Config) { c.Pipeline.Concurrency = 0 }},
		{"no attempts", func(c *Config) { c.LLM.MaxAttempts = 0 }},
	}

	require.NoError(t, valid().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_GeminiKeyFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PLANBOARD_LLM_GEMINI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "g-test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "g-test", cfg.LLM.GeminiAPIKey)
}
