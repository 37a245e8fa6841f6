package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jonathan/ad-dashboard/internal/types"
)

// ValidationError is a request rejected before it was sent.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, req types.RegisterRequest) (*types.User, error) {
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Message: types.ValidationMessage(err), Err: err}
	}

	var user types.User
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/register", body: req}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Login authenticates, stores the token pair and caches the user's profile.
func (c *Client) Login(ctx context.Context, email, password string) (*types.User, error) {
	req := types.LoginRequest{Email: email, Password: password}
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Message: types.ValidationMessage(err), Err: err}
	}

	var pair types.TokenPair
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/login", body: req}, &pair); err != nil {
		return nil, err
	}
	if err := c.tokens.SetTokens(pair.AccessToken, pair.RefreshToken); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	user, err := c.Me(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.tokens.SetUser(user); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return user, nil
}

// Refresh exchanges the stored refresh token for a new token pair and returns
// the new access token.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	return c.refresh(ctx, c.tokens.AccessToken())
}

// Me returns the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (*types.User, error) {
	var user types.User
	if err := c.do(ctx, request{method: http.MethodGet, path: "/auth/me", auth: true}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout forgets the session.
func (c *Client) Logout() error {
	return c.tokens.Clear()
}
