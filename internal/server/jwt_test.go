package server

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonathan/ad-dashboard/internal/config"
	"github.com/jonathan/ad-dashboard/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-jwt"

func makeToken(t *testing.T, method jwt.SigningMethod, secret, kind, subject string, expiresIn time.Duration) string {
	t.Helper()
	claims := session.Claims{
		Type:             kind,
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
	}
	if expiresIn != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(expiresIn))
	}
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestJWTService_Unverified(t *testing.T) {
	svc := NewJWTService(nil)

	claims, err := svc.ValidateToken(makeToken(t, jwt.SigningMethodHS256, "anything", "access", "a@example.com", time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", claims.Subject)

	tests := []struct {
		name    string
		token   string
		wantErr string
	}{
		{"empty", "", "empty"},
		{"malformed", "not.a.jwt", "malformed"},
		{"expired", makeToken(t, jwt.SigningMethodHS256, "x", "access", "a@example.com", -time.Minute), "expired"},
		{"no expiry", makeToken(t, jwt.SigningMethodHS256, "x", "access", "a@example.com", 0), "no expiry"},
		{"refresh token", makeToken(t, jwt.SigningMethodHS256, "x", "refresh", "a@example.com", time.Hour), "refresh"},
		{"no subject", makeToken(t, jwt.SigningMethodHS256, "x", "access", "", time.Hour), "subject"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tt.token)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestJWTService_Verified(t *testing.T) {
	svc := NewJWTService(&config.JWTConfig{Secret: testSecret, Algorithm: "HS256"})

	claims, err := svc.ValidateToken(makeToken(t, jwt.SigningMethodHS256, testSecret, "access", "a@example.com", time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "access", claims.Type)

	_, err = svc.ValidateToken(makeToken(t, jwt.SigningMethodHS256, "wrong-secret-value", "access", "a@example.com", time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature")

	_, err = svc.ValidateToken(makeToken(t, jwt.SigningMethodHS512, testSecret, "access", "a@example.com", time.Hour))
	require.Error(t, err, "only the configured algorithm is accepted")

	_, err = svc.ValidateToken(makeToken(t, jwt.SigningMethodHS256, testSecret, "access", "a@example.com", -time.Minute))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestJWTService_Clock(t *testing.T) {
	svc := NewJWTService(nil)
	token := makeToken(t, jwt.SigningMethodHS256, "x", "access", "a@example.com", time.Hour)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err := svc.ValidateToken(token)
	assert.Error(t, err)
}
