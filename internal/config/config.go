// Package config provides configuration management for the dashboard and the extraction pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for planboard.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Data        DataConfig        `mapstructure:"data"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Watcher     WatcherConfig     `mapstructure:"watcher"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Scraper     ScraperConfig     `mapstructure:"scraper"`
	Publish     PublishConfig     `mapstructure:"publish"`

	// Warnings lists adjustments Load made to keep the config usable.
	Warnings []string `mapstructure:"-"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DataConfig locates the on-disk data tree.
type DataConfig struct {
	// Dir is the root of per-carrier data (data/<carrier>/...).
	Dir string `mapstructure:"dir"`
	// RootDir receives the legacy copy of the consolidated file and is searched by discovery.
	RootDir string `mapstructure:"root_dir"`
}

// ConsolidatedDir returns the directory consolidated files are written to.
func (d DataConfig) ConsolidatedDir() string {
	return filepath.Join(d.Dir, "consolidated")
}

// PipelineRunsDir returns the directory pipeline logs are written to.
func (d DataConfig) PipelineRunsDir() string {
	return filepath.Join(d.Dir, "pipeline_runs")
}

// CacheConfig holds parsed dataset cache configuration.
type CacheConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

// WatcherConfig holds dataset file watcher configuration.
type WatcherConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// RateLimiterConfig holds rate limiter configuration.
type RateLimiterConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PipelineConfig holds defaults for planctl run.
type PipelineConfig struct {
	Carriers    []string `mapstructure:"carriers"`
	Concurrency int      `mapstructure:"concurrency"`
	SkipScrape  bool     `mapstructure:"skip_scrape"`
	SkipLLM     bool     `mapstructure:"skip_llm"`
	AutoPublish bool     `mapstructure:"auto_publish"`
}

// LLMConfig holds extraction model configuration.
type LLMConfig struct {
	Model            string        `mapstructure:"model"`
	AnthropicAPIKey  string        `mapstructure:"anthropic_api_key"`
	AnthropicBaseURL string        `mapstructure:"anthropic_base_url"`
	OpenAIAPIKey     string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL    string        `mapstructure:"openai_base_url"`
	GeminiAPIKey     string        `mapstructure:"gemini_api_key"`
	GeminiBaseURL    string        `mapstructure:"gemini_base_url"`
	MaxTokens        int           `mapstructure:"max_tokens"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
}

// ScraperConfig holds page fetching configuration.
type ScraperConfig struct {
	CatalogPath  string        `mapstructure:"catalog_path"`
	Browser      bool          `mapstructure:"browser"`
	BrowserBin   string        `mapstructure:"browser_bin"`
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	SettleDelay  time.Duration `mapstructure:"settle_delay"`
	WaitSelector string        `mapstructure:"wait_selector"`
}

// PublishConfig holds git publishing configuration.
type PublishConfig struct {
	RepoDir  string   `mapstructure:"repo_dir"`
	Remote   string   `mapstructure:"remote"`
	Branches []string `mapstructure:"branches"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/planboard/")
	}

	v.SetEnvPrefix("PLANBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("llm.anthropic_api_key", "PLANBOARD_LLM_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("llm.openai_api_key", "PLANBOARD_LLM_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.gemini_api_key", "PLANBOARD_LLM_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.applyPlatformEnv(); err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.Server.Port {
		cfg.Metrics.Enabled = false
		cfg.Warnings = append(cfg.Warnings,
			fmt.Sprintf("metrics listener disabled: port %d is taken by the server", cfg.Metrics.Port))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyPlatformEnv applies the PORT and HOST injected by the hosting
// platform. They win over the config file and PLANBOARD_SERVER_*.
func (c *Config) applyPlatformEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		n, err := strconv.Atoi(strings.TrimSpace(port))
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		c.Server.Port = n
	}
	if host := os.Getenv("HOST"); host != "" {
		c.Server.Host = strings.TrimSpace(host)
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("data.dir", "data")
	v.SetDefault("data.root_dir", ".")

	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("cache.max_entries", 8)

	v.SetDefault("watcher.enabled", true)
	v.SetDefault("watcher.debounce", "500ms")

	// Rate limiter defaults
	v.SetDefault("rate_limiter.enabled", false)
	v.SetDefault("rate_limiter.requests_per_second", 50.0)
	v.SetDefault("rate_limiter.burst_size", 100)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("pipeline.carriers", []string{})
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.skip_scrape", false)
	v.SetDefault("pipeline.skip_llm", false)
	v.SetDefault("pipeline.auto_publish", false)

	v.SetDefault("llm.model", "gpt-5-nano")
	v.SetDefault("llm.anthropic_base_url", "https://api.anthropic.com")
	v.SetDefault("llm.openai_base_url", "https://api.openai.com")
	v.SetDefault("llm.max_tokens", 16000)
	v.SetDefault("llm.timeout", "300s")
	v.SetDefault("llm.max_attempts", 5)

	v.SetDefault("scraper.catalog_path", "config/carriers.yaml")
	v.SetDefault("scraper.browser", true)
	v.SetDefault("scraper.timeout", "60s")
	v.SetDefault("scraper.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	v.SetDefault("scraper.settle_delay", "3s")

	v.SetDefault("publish.repo_dir", ".")
	v.SetDefault("publish.remote", "origin")
	v.SetDefault("publish.branches", []string{"main", "master"})
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive")
	}

	if c.Data.Dir == "" {
		return fmt.Errorf("data dir is required")
	}

	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max entries must be positive")
	}

	if c.Watcher.Enabled && c.Watcher.Debounce <= 0 {
		return fmt.Errorf("watcher debounce must be positive")
	}

	if c.RateLimiter.Enabled {
		if c.RateLimiter.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate limiter requests per second must be positive")
		}
		if c.RateLimiter.BurstSize <= 0 {
			return fmt.Errorf("rate limiter burst size must be positive")
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
		}
	}

	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline concurrency must be positive")
	}

	if c.LLM.MaxAttempts <= 0 {
		return fmt.Errorf("llm max attempts must be positive")
	}

	return nil
}
