package schemas

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigSchema_IsValidJSON(t *testing.T) {
	var doc map[string]any
	require.NoError(t, json.Unmarshal(ConfigSchema(), &doc))
	assert.Equal(t, "object", doc["type"])

	// Callers get a copy.
	schema := ConfigSchema()
	schema[0] = 'x'
	assert.Equal(t, byte('{'), ConfigSchema()[0])
}

func TestValidateConfig_Valid(t *testing.T) {
	doc := `{
		"api_base_url": "https://ads.example.com",
		"poll_interval": "2s",
		"request_timeout": "1m30s",
		"refresh_skew": "500ms",
		"session_file": "/tmp/session.json",
		"log_level": "debug",
		"log_format": "json",
		"server_port": 8080,
		"cors_origins": ["http://localhost:5173"]
	}`
	assert.NoError(t, ValidateConfig([]byte(doc)))
	assert.NoError(t, ValidateConfig([]byte(`{}`)))
}

func TestValidateConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{name: "bad url scheme", doc: `{"api_base_url": "ftp://ads"}`, field: "api_base_url"},
		{name: "bare number duration", doc: `{"poll_interval": "5"}`, field: "poll_interval"},
		{name: "duration wrong type", doc: `{"request_timeout": 30}`, field: "request_timeout"},
		{name: "unknown log level", doc: `{"log_level": "loud"}`, field: "log_level"},
		{name: "unknown log format", doc: `{"log_format": "xml"}`, field: "log_format"},
		{name: "port out of range", doc: `{"server_port": 70000}`, field: "server_port"},
		{name: "unknown key", doc: `{"job_url": "https://example.com"}`, field: "(root)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig([]byte(tt.doc))
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "error should be ValidationError type")
			assert.Contains(t, verr.Fields(), tt.field)
		})
	}
}

func TestValidateConfig_MalformedJSON(t *testing.T) {
	err := ValidateConfig([]byte("{ invalid json }"))
	require.Error(t, err)

	var loadErr *SchemaLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.NotNil(t, loadErr.Unwrap())
}

func TestValidateConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"log_format": "text"}`), 0644))
	assert.NoError(t, ValidateConfigFile(path))

	err := ValidateConfigFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidateJSONString_Valid(t *testing.T) {
	schema := `{"type": "object", "properties": {"run_id": {"type": "string"}}, "required": ["run_id"]}`
	assert.NoError(t, ValidateJSONString(schema, `{"run_id": "abc"}`))
}

func TestValidateJSONString_Invalid(t *testing.T) {
	schema := `{"type": "object", "properties": {"run_id": {"type": "string"}}, "required": ["run_id"]}`
	err := ValidateJSONString(schema, `{"status": "GENERATED"}`)
	require.Error(t, err)

	verr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, []string{"(root)"}, verr.Fields())
}

func TestValidationError_Error(t *testing.T) {
	verr := &ValidationError{Errors: []FieldError{
		{Field: "poll_interval", Message: "Does not match pattern"},
		{Field: "log_level", Message: "must be one of the following"},
	}}
	msg := verr.Error()
	assert.Contains(t, msg, "validation failed")
	assert.Contains(t, msg, "1. poll_interval: Does not match pattern")
	assert.Contains(t, msg, "2. log_level")
}

func TestSchemaLoadError_Error(t *testing.T) {
	err := &SchemaLoadError{Path: "(string schema)", Message: "bad"}
	assert.Equal(t, "failed to load schema (string schema): bad", err.Error())
}
