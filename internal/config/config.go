package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the dashboard platform.
type Config struct {
	Storage Storage       `yaml:"storage"`
	Server  Server        `yaml:"server"`
	Alpaca  Alpaca        `yaml:"alpaca"`
	Logging Logging       `yaml:"logging"`
	Perf    PerfConfig    `yaml:"perf"`
	Console ConsoleConfig `yaml:"console"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port listen address.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Alpaca holds credentials and endpoints for the Alpaca broker API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PerfConfig tunes the section-loading performance layer. Durations are
// plain integers (seconds / milliseconds) so the YAML stays human-editable.
type PerfConfig struct {
	CacheCapacity         int `yaml:"cache_capacity"`
	CacheTTLSeconds       int `yaml:"cache_ttl_seconds"`
	PrefetchMaxAgeSeconds int `yaml:"prefetch_max_age_seconds"`
	QueueConcurrency      int `yaml:"queue_concurrency"`
	RefreshDebounceMs     int `yaml:"refresh_debounce_ms"`
	RateLimitPerMin       int `yaml:"rate_limit_per_min"`
	FetchMaxAttempts      int `yaml:"fetch_max_attempts"`
	FetchRetryBackoffMs   int `yaml:"fetch_retry_backoff_ms"`
}

// CacheTTL returns the cache TTL as a duration.
func (p PerfConfig) CacheTTL() time.Duration {
	return time.Duration(p.CacheTTLSeconds) * time.Second
}

// PrefetchMaxAge returns the prefetch freshness window as a duration.
func (p PerfConfig) PrefetchMaxAge() time.Duration {
	return time.Duration(p.PrefetchMaxAgeSeconds) * time.Second
}

// RefreshDebounce returns the refresh debounce wait as a duration.
func (p PerfConfig) RefreshDebounce() time.Duration {
	return time.Duration(p.RefreshDebounceMs) * time.Millisecond
}

// FetchRetryBackoff returns the base retry backoff as a duration.
func (p PerfConfig) FetchRetryBackoff() time.Duration {
	return time.Duration(p.FetchRetryBackoffMs) * time.Millisecond
}

// ConsoleConfig tunes the terminal dashboard client.
type ConsoleConfig struct {
	ServerURL string `yaml:"server_url"`
	RowHeight int    `yaml:"row_height"`
	Overscan  int    `yaml:"overscan"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// Default returns a Config with defaults and env overrides applied, for
// running without a config file.
func Default() *Config {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills zero-valued fields with working defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "dashboard.db"
	}
	if cfg.Perf.CacheCapacity == 0 {
		cfg.Perf.CacheCapacity = 50
	}
	if cfg.Perf.CacheTTLSeconds == 0 {
		cfg.Perf.CacheTTLSeconds = 300
	}
	if cfg.Perf.PrefetchMaxAgeSeconds == 0 {
		cfg.Perf.PrefetchMaxAgeSeconds = 60
	}
	if cfg.Perf.QueueConcurrency == 0 {
		cfg.Perf.QueueConcurrency = 4
	}
	if cfg.Perf.RefreshDebounceMs == 0 {
		cfg.Perf.RefreshDebounceMs = 300
	}
	if cfg.Perf.RateLimitPerMin == 0 {
		cfg.Perf.RateLimitPerMin = 180
	}
	if cfg.Perf.FetchMaxAttempts == 0 {
		cfg.Perf.FetchMaxAttempts = 3
	}
	if cfg.Perf.FetchRetryBackoffMs == 0 {
		cfg.Perf.FetchRetryBackoffMs = 500
	}
	if cfg.Console.ServerURL == "" {
		cfg.Console.ServerURL = "http://" + cfg.Server.Addr()
	}
	if cfg.Console.RowHeight == 0 {
		cfg.Console.RowHeight = 1
	}
	if cfg.Console.Overscan == 0 {
		cfg.Console.Overscan = 5
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("DASHBOARD_URL"); v != "" {
		cfg.Console.ServerURL = v
	}

	// Standard Alpaca env vars take highest priority; the SDK reads the same names.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
