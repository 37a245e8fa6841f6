package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	var names []string
	for _, cmd := range rootCmd.Commands() {
		names = append(names, cmd.Name())
	}
	for _, want := range []string{"register", "login", "logout", "whoami", "create", "show", "list", "status", "video", "watch", "dashboard", "serve"} {
		assert.Contains(t, names, want)
	}
}

func TestConfigFile(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	t.Setenv("AD_API_BASE_URL", "")

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"api_base_url": "`+env.backend.URL()+`/", "log_format": "json"}`), 0o600))

	out, err := execute(t, "--config", path, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, owner)
}

func TestConfigFile_Invalid(t *testing.T) {
	newCLIEnv(t)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"poll_interval": "soon"}`), 0o600))

	_, err := execute(t, "--config", path, "whoami")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestAPIURLFlag_Overrides(t *testing.T) {
	newCLIEnv(t)

	_, err := execute(t, "--api-url", "ftp://example.com", "whoami")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_base_url")
}

func TestServe_InvalidJWTSecret(t *testing.T) {
	newCLIEnv(t)
	t.Setenv("JWT_SECRET", "short")

	_, err := execute(t, "serve", "--port", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestServe_InvalidDatabaseURL(t *testing.T) {
	newCLIEnv(t)
	t.Setenv("JWT_SECRET", "")

	_, err := execute(t, "serve", "--db-url", "not a url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to database")
}
