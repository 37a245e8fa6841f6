package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvAPIBaseURL, EnvPollInterval, EnvRequestTimeout, EnvRefreshSkew,
		EnvSessionFile, EnvServerPort, EnvCORSOrigins, EnvLogLevel, EnvLogFormat,
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_ValidJSON(t *testing.T) {
	path := writeConfig(t, `{
		"api_base_url": "https://ads.example.com",
		"poll_interval": "2s",
		"request_timeout": "45s",
		"log_level": "debug",
		"log_format": "json",
		"server_port": 9090,
		"cors_origins": ["http://localhost:5173"]
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "https://ads.example.com", cfg.APIBaseURL)
	assert.Equal(t, 2*time.Second, cfg.PollInterval.Std())
	assert.Equal(t, 45*time.Second, cfg.RequestTimeout.Std())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSOrigins)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{ invalid json }`))
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config JSON")
}

func TestLoadConfig_SchemaViolation(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{"poll_interval": "soon", "log_format": "xml"}`))
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "poll_interval")
	assert.Contains(t, err.Error(), "log_format")
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.json")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "config path is empty")
}

func TestFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAPIBaseURL, " https://api.example.com ")
	t.Setenv(EnvPollInterval, "750ms")
	t.Setenv(EnvServerPort, "9000")
	t.Setenv(EnvCORSOrigins, "http://a.test, ,http://b.test")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.APIBaseURL)
	assert.Equal(t, 750*time.Millisecond, cfg.PollInterval.Std())
	assert.Equal(t, 9000, cfg.ServerPort)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Zero(t, cfg.RequestTimeout)
}

func TestFromEnv_Invalid(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvRequestTimeout, "thirty")
	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvRequestTimeout)

	clearEnv(t)
	t.Setenv(EnvServerPort, "http")
	_, err = FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvServerPort)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "empty is valid", cfg: Config{}},
		{name: "defaults are valid", cfg: Defaults()},
		{name: "bad url", cfg: Config{APIBaseURL: "localhost:8000"}, wantErr: "api_base_url"},
		{name: "negative poll interval", cfg: Config{PollInterval: Duration(-time.Second)}, wantErr: "non-negative"},
		{name: "poll interval too small", cfg: Config{PollInterval: Duration(time.Millisecond)}, wantErr: "at least 100ms"},
		{name: "negative timeout", cfg: Config{RequestTimeout: Duration(-1)}, wantErr: "request_timeout"},
		{name: "port out of range", cfg: Config{ServerPort: 70000}, wantErr: "server_port"},
		{name: "bad log format", cfg: Config{LogFormat: "xml"}, wantErr: "log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMergeWithDefaults(t *testing.T) {
	cfg := &Config{
		APIBaseURL: "https://api.example.com/",
		LogLevel:   "debug",
	}
	defaults := Defaults()
	defaults.CORSOrigins = []string{"http://localhost:5173"}

	merged := cfg.MergeWithDefaults(defaults)
	assert.Equal(t, "https://api.example.com", merged.APIBaseURL, "trailing slash is trimmed")
	assert.Equal(t, "debug", merged.LogLevel)
	assert.Equal(t, DefaultLogFormat, merged.LogFormat)
	assert.Equal(t, DefaultPollInterval, merged.PollInterval.Std())
	assert.Equal(t, DefaultRequestTimeout, merged.RequestTimeout.Std())
	assert.Equal(t, DefaultServerPort, merged.ServerPort)
	assert.Equal(t, []string{"http://localhost:5173"}, merged.CORSOrigins)

	// The receiver is left untouched.
	assert.Empty(t, cfg.LogFormat)
}

func TestLoad_Layering(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `{"api_base_url": "https://file.example.com", "poll_interval": "2s", "log_format": "json"}`)
	t.Setenv(EnvAPIBaseURL, "https://env.example.com")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.APIBaseURL, "environment wins over file")
	assert.Equal(t, 2*time.Second, cfg.PollInterval.Std(), "file wins over defaults")
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
}

func TestLoad_NoFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoad_InvalidEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAPIBaseURL, "not a url")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_base_url")
}

func TestDuration_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		D Duration `json:"d"`
	}{D: Duration(90 * time.Second)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"1m30s"}`, string(data))

	var d Duration
	assert.Error(t, json.Unmarshal([]byte(`5`), &d))
	assert.Error(t, json.Unmarshal([]byte(`"5 minutes"`), &d))
	require.NoError(t, json.Unmarshal([]byte(`"1h"`), &d))
	assert.Equal(t, time.Hour, d.Std())
}
