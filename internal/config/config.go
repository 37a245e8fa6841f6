// Package config provides configuration loading and validation for the CLI
// and the dashboard server.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/ad-dashboard/internal/schemas"
)

// Defaults applied when neither the config file, the environment nor a flag
// sets a value.
const (
	DefaultAPIBaseURL     = "http://localhost:8000"
	DefaultPollInterval   = 5 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultRefreshSkew    = 30 * time.Second
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultServerPort     = 8081
)

// Environment variable names.
const (
	EnvAPIBaseURL     = "AD_API_BASE_URL"
	EnvPollInterval   = "AD_POLL_INTERVAL"
	EnvRequestTimeout = "AD_REQUEST_TIMEOUT"
	EnvRefreshSkew    = "AD_REFRESH_SKEW"
	EnvSessionFile    = "AD_SESSION_FILE"
	EnvServerPort     = "AD_SERVER_PORT"
	EnvCORSOrigins    = "AD_CORS_ORIGINS"
	EnvLogLevel       = "LOG_LEVEL"
	EnvLogFormat      = "LOG_FORMAT"
)

// Duration is a time.Duration written as a Go duration string ("3s") in JSON.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Config represents the settings shared by the CLI and the dashboard server.
// All fields are optional; missing values are filled by MergeWithDefaults.
type Config struct {
	// Backend
	APIBaseURL     string   `json:"api_base_url,omitempty"`    // Base URL of the ad generation API
	RequestTimeout Duration `json:"request_timeout,omitempty"` // Per-request HTTP timeout
	RefreshSkew    Duration `json:"refresh_skew,omitempty"`    // Refresh tokens expiring within this window

	// Tracking
	PollInterval Duration `json:"poll_interval,omitempty"` // Time between two status fetches

	// Session
	SessionFile string `json:"session_file,omitempty"` // Token file; empty means the user config dir

	// Logging
	LogLevel  string `json:"log_level,omitempty"`
	LogFormat string `json:"log_format,omitempty"` // text or json

	// Server
	ServerPort  int      `json:"server_port,omitempty"`
	CORSOrigins []string `json:"cors_origins,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		APIBaseURL:     DefaultAPIBaseURL,
		RequestTimeout: Duration(DefaultRequestTimeout),
		RefreshSkew:    Duration(DefaultRefreshSkew),
		PollInterval:   Duration(DefaultPollInterval),
		LogLevel:       DefaultLogLevel,
		LogFormat:      DefaultLogFormat,
		ServerPort:     DefaultServerPort,
	}
}

// LoadConfig loads configuration from a JSON file. The document is checked
// against the embedded config schema before it is decoded.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("failed to parse config JSON: %s is not valid JSON", path)
	}
	if err := schemas.ValidateConfig(data); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// FromEnv reads configuration from environment variables. Unset variables
// leave the corresponding field empty.
func FromEnv() (*Config, error) {
	cfg := &Config{
		APIBaseURL:  strings.TrimSpace(os.Getenv(EnvAPIBaseURL)),
		SessionFile: strings.TrimSpace(os.Getenv(EnvSessionFile)),
		LogLevel:    strings.TrimSpace(os.Getenv(EnvLogLevel)),
		LogFormat:   strings.TrimSpace(os.Getenv(EnvLogFormat)),
	}

	durations := []struct {
		key string
		dst *Duration
	}{
		{EnvPollInterval, &cfg.PollInterval},
		{EnvRequestTimeout, &cfg.RequestTimeout},
		{EnvRefreshSkew, &cfg.RefreshSkew},
	}
	for _, d := range durations {
		raw := strings.TrimSpace(os.Getenv(d.key))
		if raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %v", d.key, err)
		}
		*d.dst = Duration(parsed)
	}

	if raw := strings.TrimSpace(os.Getenv(EnvServerPort)); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %v", EnvServerPort, err)
		}
		cfg.ServerPort = port
	}

	if raw := os.Getenv(EnvCORSOrigins); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
			}
		}
	}

	return cfg, nil
}

// Validate checks that the configuration has valid values.
// Note: empty fields are accepted since they are filled by MergeWithDefaults.
func (c *Config) Validate() error {
	if c.APIBaseURL != "" {
		u, err := url.Parse(c.APIBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config error: 'api_base_url' must be an http(s) URL, got %q", c.APIBaseURL)
		}
	}

	// Validate numeric ranges
	if c.PollInterval < 0 {
		return fmt.Errorf("config error: 'poll_interval' must be non-negative")
	}
	if c.PollInterval > 0 && c.PollInterval.Std() < 100*time.Millisecond {
		return fmt.Errorf("config error: 'poll_interval' must be at least 100ms, got %s", c.PollInterval.Std())
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("config error: 'request_timeout' must be non-negative")
	}
	if c.RefreshSkew < 0 {
		return fmt.Errorf("config error: 'refresh_skew' must be non-negative")
	}
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return fmt.Errorf("config error: 'server_port' must be between 1 and 65535, got %d", c.ServerPort)
	}

	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config error: 'log_format' must be text or json, got %q", c.LogFormat)
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// It is applied in layers: flags over environment over config file over
// built-in defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.APIBaseURL == "" {
		result.APIBaseURL = defaults.APIBaseURL
	}
	if result.SessionFile == "" {
		result.SessionFile = defaults.SessionFile
	}
	if result.LogLevel == "" {
		result.LogLevel = defaults.LogLevel
	}
	if result.LogFormat == "" {
		result.LogFormat = defaults.LogFormat
	}

	// Duration and int fields: use default if zero
	if result.PollInterval == 0 {
		result.PollInterval = defaults.PollInterval
	}
	if result.RequestTimeout == 0 {
		result.RequestTimeout = defaults.RequestTimeout
	}
	if result.RefreshSkew == 0 {
		result.RefreshSkew = defaults.RefreshSkew
	}
	if result.ServerPort == 0 {
		result.ServerPort = defaults.ServerPort
	}

	if len(result.CORSOrigins) == 0 && len(defaults.CORSOrigins) > 0 {
		result.CORSOrigins = append([]string(nil), defaults.CORSOrigins...)
	}

	result.APIBaseURL = strings.TrimRight(result.APIBaseURL, "/")
	return result
}

// Load builds the effective configuration from the optional config file at
// path, the environment and the built-in defaults, and validates it.
func Load(path string) (Config, error) {
	env, err := FromEnv()
	if err != nil {
		return Config{}, err
	}

	base := Defaults()
	if path != "" {
		file, err := LoadConfig(path)
		if err != nil {
			return Config{}, err
		}
		base = file.MergeWithDefaults(base)
	}

	cfg := env.MergeWithDefaults(base)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
