// Package config provides configuration types and defaults for refcheck.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/zjrosen/refcheck/internal/flags"
	"github.com/zjrosen/refcheck/internal/log"
	"github.com/zjrosen/refcheck/internal/tracing"
)

// EnvPrefix prefixes environment overrides, e.g. REFCHECK_SERVER_BASE_URL.
const EnvPrefix = "REFCHECK"

// LocalConfigPath is the per-directory config file checked first.
const LocalConfigPath = ".refcheck/config.yaml"

// Config holds all configuration options for refcheck.
type Config struct {
	Server  ServerConfig   `mapstructure:"server" yaml:"server"`
	History HistoryConfig  `mapstructure:"history" yaml:"history"`
	Cache   CacheConfig    `mapstructure:"cache" yaml:"cache"`
	State   StateConfig    `mapstructure:"state" yaml:"state"`
	Model   string         `mapstructure:"model" yaml:"model"`
	Log     LogConfig      `mapstructure:"log" yaml:"log"`
	Tracing tracing.Config `mapstructure:"tracing" yaml:"tracing"`
	// Flags toggles features by name; see package flags.
	Flags map[string]bool `mapstructure:"flags" yaml:"flags"`
}

// ServerConfig locates the verification service.
type ServerConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// WSURL is the WebSocket origin. Derived from BaseURL when empty.
	WSURL        string        `mapstructure:"ws_url" yaml:"ws_url"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	PingInterval time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
}

// HistoryConfig controls the history listing.
type HistoryConfig struct {
	Limit int `mapstructure:"limit" yaml:"limit"`
}

// CacheConfig controls the detail cache.
type CacheConfig struct {
	DetailTTL time.Duration `mapstructure:"detail_ttl" yaml:"detail_ttl"`
}

// StateConfig locates the local session store.
type StateConfig struct {
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
	// Watch re-reads the store when another process changes it.
	Watch bool `mapstructure:"watch" yaml:"watch"`
}

// LogConfig controls the debug log file.
type LogConfig struct {
	Path  string `mapstructure:"path" yaml:"path"`
	Level string `mapstructure:"level" yaml:"level"`
}

// WebSocketURL returns Server.WSURL, or BaseURL with its scheme switched to
// ws/wss.
func (s ServerConfig) WebSocketURL() (string, error) {
	if s.WSURL != "" {
		return strings.TrimRight(s.WSURL, "/"), nil
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing server.base_url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("server.base_url must be http or https, got %q", s.BaseURL)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// DefaultStateDBPath returns ~/.config/refcheck/state.db or empty string if
// the home dir is unavailable.
func DefaultStateDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "refcheck", "state.db")
}

// DefaultTracesFilePath returns ~/.config/refcheck/traces/traces.jsonl.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "refcheck", "traces", "traces.jsonl")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	tc := tracing.DefaultConfig()
	tc.FilePath = DefaultTracesFilePath()
	return Config{
		Server: ServerConfig{
			BaseURL:      "http://localhost:8000",
			Timeout:      30 * time.Second,
			PingInterval: 30 * time.Second,
		},
		History: HistoryConfig{Limit: 50},
		Cache:   CacheConfig{DetailTTL: 10 * time.Minute},
		State: StateConfig{
			DBPath: DefaultStateDBPath(),
			Watch:  true,
		},
		Model:   "anthropic",
		Log:     LogConfig{Level: "info"},
		Tracing: tc,
		Flags:   flags.Defaults(),
	}
}

// SetDefaults registers Defaults on v so unset keys still unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("server.base_url", d.Server.BaseURL)
	v.SetDefault("server.ws_url", d.Server.WSURL)
	v.SetDefault("server.timeout", d.Server.Timeout)
	v.SetDefault("server.ping_interval", d.Server.PingInterval)
	v.SetDefault("history.limit", d.History.Limit)
	v.SetDefault("cache.detail_ttl", d.Cache.DetailTTL)
	v.SetDefault("state.db_path", d.State.DBPath)
	v.SetDefault("state.watch", d.State.Watch)
	v.SetDefault("model", d.Model)
	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	for name, on := range d.Flags {
		v.SetDefault("flags."+name, on)
	}
}

// Load reads configuration into a fresh viper instance.
//
// Lookup order when path is empty:
//  1. .refcheck/config.yaml (current directory)
//  2. ~/.config/refcheck/config.yaml
//
// A missing file is not an error; defaults and REFCHECK_* environment
// variables still apply. Returns the config file used, if any.
func Load(path string) (Config, string, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else if _, err := os.Stat(LocalConfigPath); err == nil {
		v.SetConfigFile(LocalConfigPath)
	} else {
		home, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(home, ".config", "refcheck"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, "", fmt.Errorf("reading config: %w", err)
		}
		log.Debug(log.CatConfig, "No config file found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("decoding config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, "", err
	}
	return cfg, v.ConfigFileUsed(), nil
}

// Validate checks every section.
func Validate(cfg Config) error {
	if err := ValidateServer(cfg.Server); err != nil {
		return err
	}
	if err := ValidateHistory(cfg.History); err != nil {
		return err
	}
	if cfg.Cache.DetailTTL < 0 {
		return fmt.Errorf("cache.detail_ttl must not be negative, got %v", cfg.Cache.DetailTTL)
	}
	if cfg.State.DBPath != "" && cfg.State.DBPath != ":memory:" && !filepath.IsAbs(cfg.State.DBPath) {
		return fmt.Errorf("state.db_path must be an absolute path, got %q", cfg.State.DBPath)
	}
	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be \"debug\", \"info\", \"warn\", or \"error\", got %q", cfg.Log.Level)
	}
	return ValidateTracing(cfg.Tracing)
}

// ValidateServer checks the server section.
func ValidateServer(s ServerConfig) error {
	if s.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if _, err := s.WebSocketURL(); err != nil {
		return err
	}
	if s.WSURL != "" {
		u, err := url.Parse(s.WSURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("server.ws_url must be a ws:// or wss:// URL, got %q", s.WSURL)
		}
	}
	if s.Timeout < 0 {
		return fmt.Errorf("server.timeout must not be negative, got %v", s.Timeout)
	}
	if s.PingInterval != 0 && s.PingInterval < time.Second {
		return fmt.Errorf("server.ping_interval must be at least 1s, got %v", s.PingInterval)
	}
	return nil
}

// ValidateHistory checks the history section.
func ValidateHistory(h HistoryConfig) error {
	if h.Limit < 0 || h.Limit > 1000 {
		return fmt.Errorf("history.limit must be between 0 and 1000, got %d", h.Limit)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(t tracing.Config) error {
	if t.SampleRate < 0.0 || t.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", t.SampleRate)
	}

	switch t.Exporter {
	case "", tracing.ExporterNone, tracing.ExporterFile, tracing.ExporterStdout, tracing.ExporterOTLP:
	default:
		return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", t.Exporter)
	}

	// Only validate path requirements when tracing is enabled
	if t.Enabled {
		if t.Exporter == tracing.ExporterFile && t.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if t.Exporter == tracing.ExporterOTLP && t.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}
	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# refcheck configuration

# Verification service
server:
  base_url: http://localhost:8000
  # ws_url: ws://localhost:8000   # WebSocket origin (default: derived from base_url)
  timeout: 30s                    # Unary request timeout
  ping_interval: 30s              # Keepalive for progress channels

# History list
history:
  limit: 50

# Completed check details are cached in memory
cache:
  detail_ttl: 10m

# Local session store; remembers running checks across restarts
state:
  # db_path: ~/.config/refcheck/state.db
  watch: true   # Pick up checks started by another refcheck process

# LLM provider passed with new submissions
model: anthropic

# Debug log
log:
  # path: /tmp/refcheck.log
  level: info   # debug, info, warn, error

# Feature flags
flags:
  session-persistence: true   # Remember running checks in the state database

# Distributed tracing
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/refcheck/traces/traces.jsonl
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
