package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the claims the backend puts into its tokens. The subject is the
// user's email; Type is "access" or "refresh".
type Claims struct {
	Type string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// ParseClaims decodes a token's claims without verifying its signature. The
// signing secret belongs to the backend, which stays the authority on
// validity; the claims are only used to schedule refreshes and reject tokens
// that are already expired.
func ParseClaims(token string) (*Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("token string is empty")
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("malformed token: %w", err)
	}
	return claims, nil
}

// ExpiresWithin reports whether token carries an expiry that falls within d
// from now. Tokens without a readable expiry never report true.
func ExpiresWithin(token string, d time.Duration) bool {
	claims, err := ParseClaims(token)
	if err != nil || claims.ExpiresAt == nil {
		return false
	}
	return time.Until(claims.ExpiresAt.Time) <= d
}

// Expired reports whether token's expiry has passed.
func Expired(token string) bool {
	return ExpiresWithin(token, 0)
}
