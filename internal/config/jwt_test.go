package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJWTConfig_DefaultValues(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_ALGORITHM", "")

	cfg, err := NewJWTConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "HS256", cfg.Algorithm, "should default to HS256")
	assert.False(t, cfg.Verify(), "no secret means expiry-only checks")
}

func TestNewJWTConfig_WithSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "a-shared-backend-secret")
	t.Setenv("JWT_ALGORITHM", "hs512")

	cfg, err := NewJWTConfig()
	require.NoError(t, err)
	assert.Equal(t, "a-shared-backend-secret", cfg.Secret)
	assert.Equal(t, "HS512", cfg.Algorithm)
	assert.True(t, cfg.Verify())
}

func TestNewJWTConfig_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		secret    string
		algorithm string
		wantErr   string
	}{
		{name: "asymmetric algorithm", algorithm: "RS256", wantErr: "unsupported JWT_ALGORITHM"},
		{name: "short secret", secret: "short", wantErr: "at least 16 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", tt.secret)
			t.Setenv("JWT_ALGORITHM", tt.algorithm)

			cfg, err := NewJWTConfig()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestJWTConfig_VerifyNil(t *testing.T) {
	var cfg *JWTConfig
	assert.False(t, cfg.Verify())
}
