package config

import (
	"fmt"
	"os"
	"strings"
)

// Supported signing algorithms for verified mode.
var supportedAlgorithms = map[string]bool{"HS256": true, "HS384": true, "HS512": true}

// JWTConfig controls how the dashboard server checks bearer tokens. With no
// secret the server only checks token expiry and lets the backend verify the
// signature. With a secret it also verifies the signature locally.
type JWTConfig struct {
	Secret    string
	Algorithm string
}

// NewJWTConfig creates a JWT configuration from environment variables.
// It reads JWT_SECRET (optional) and JWT_ALGORITHM (default: HS256).
func NewJWTConfig() (*JWTConfig, error) {
	algorithm := strings.ToUpper(strings.TrimSpace(os.Getenv("JWT_ALGORITHM")))
	if algorithm == "" {
		algorithm = "HS256" // default
	}

	config := &JWTConfig{
		Secret:    os.Getenv("JWT_SECRET"),
		Algorithm: algorithm,
	}

	if err := config.normalize(); err != nil {
		return nil, err
	}

	return config, nil
}

// Verify reports whether token signatures are checked locally.
func (c *JWTConfig) Verify() bool {
	return c != nil && c.Secret != ""
}

// normalize validates the configuration.
func (c *JWTConfig) normalize() error {
	if !supportedAlgorithms[c.Algorithm] {
		return fmt.Errorf("unsupported JWT_ALGORITHM %q", c.Algorithm)
	}
	if c.Secret != "" && len(c.Secret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters, got: %d", len(c.Secret))
	}
	return nil
}
