package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonathan/ad-dashboard/internal/config"
	"github.com/jonathan/ad-dashboard/internal/server/middleware"
	"github.com/jonathan/ad-dashboard/internal/session"
)

// tokenTypeRefresh marks refresh tokens, which never authorize API calls.
const tokenTypeRefresh = "refresh"

// JWTService validates the bearer tokens callers present. The tokens are
// issued by the backend. Without a configured secret only expiry and token
// type are checked and the backend verifies the signature when the token is
// forwarded.
type JWTService struct {
	config *config.JWTConfig
	now    func() time.Time
}

// NewJWTService creates a new JWT service with the given configuration.
func NewJWTService(cfg *config.JWTConfig) *JWTService {
	if cfg == nil {
		cfg = &config.JWTConfig{Algorithm: "HS256"}
	}
	return &JWTService{config: cfg, now: time.Now}
}

// AsTokenValidator returns the service as a middleware.TokenValidator.
func (s *JWTService) AsTokenValidator() middleware.TokenValidator {
	return s
}

// ValidateToken validates a token and returns its claims.
func (s *JWTService) ValidateToken(tokenString string) (*session.Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("token string is empty")
	}

	var (
		claims *session.Claims
		err    error
	)
	if s.config.Verify() {
		claims, err = s.parseVerified(tokenString)
	} else {
		claims, err = s.parseUnverified(tokenString)
	}
	if err != nil {
		return nil, err
	}

	if claims.Type == tokenTypeRefresh {
		return nil, fmt.Errorf("refresh tokens cannot authorize requests")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

func (s *JWTService) parseVerified(tokenString string) (*session.Claims, error) {
	claims := &session.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(s.config.Secret), nil
	},
		jwt.WithValidMethods([]string{s.config.Algorithm}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrSignatureInvalid) {
			return nil, fmt.Errorf("invalid token signature: %w", err)
		}
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("token expired: %w", err)
		}
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, fmt.Errorf("malformed token: %w", err)
		}
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}

	return claims, nil
}

func (s *JWTService) parseUnverified(tokenString string) (*session.Claims, error) {
	claims, err := session.ParseClaims(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("token has no expiry")
	}
	if !s.now().Before(claims.ExpiresAt.Time) {
		return nil, fmt.Errorf("token expired: %w", jwt.ErrTokenExpired)
	}
	return claims, nil
}
