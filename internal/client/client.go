// Package client is the REST client for the ad generation API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/ad-dashboard/internal/ratelimit"
	"github.com/jonathan/ad-dashboard/internal/session"
	"github.com/jonathan/ad-dashboard/internal/types"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultRefreshSkew is how close to expiry an access token gets refreshed
// before use.
const DefaultRefreshSkew = 30 * time.Second

// RequestIDHeader carries a per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

const maxResponseBytes = 4 << 20

// TokenStore holds the session tokens. *session.Store implements it.
type TokenStore interface {
	AccessToken() string
	RefreshToken() string
	SetTokens(access, refresh string) error
	SetUser(u *types.User) error
	Clear() error
}

// Client calls the ad generation API on behalf of one user session.
type Client struct {
	baseURL     string
	http        *http.Client
	tokens      TokenStore
	limiter     *ratelimit.Limiter
	limiterSet  bool
	ownsLimiter bool
	breaker     *gobreaker.CircuitBreaker
	log         *logrus.Entry
	refreshSkew time.Duration

	refreshMu sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLimiter sets the client-side rate limiter. A nil limiter disables
// client-side throttling.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
		c.limiterSet = true
	}
}

// WithBreaker replaces the circuit breaker settings.
func WithBreaker(st gobreaker.Settings) Option {
	return func(c *Client) {
		c.breaker = gobreaker.NewCircuitBreaker(st)
	}
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithRefreshSkew sets how early access tokens are refreshed.
func WithRefreshSkew(d time.Duration) Option {
	return func(c *Client) {
		c.refreshSkew = d
	}
}

// BreakerSettings returns the default circuit breaker settings: the circuit
// opens once at least 5 requests in a 30s window failed at a 60% ratio, and
// probes again after 15s.
func BreakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
}

// New creates a client for the API at baseURL.
func New(baseURL string, tokens TokenStore, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q", baseURL)
	}
	if tokens == nil {
		tokens = session.NewMemoryStore("")
	}

	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        &http.Client{Timeout: DefaultTimeout},
		tokens:      tokens,
		breaker:     gobreaker.NewCircuitBreaker(BreakerSettings("ad-api")),
		log:         logrus.NewEntry(logrus.StandardLogger()),
		refreshSkew: DefaultRefreshSkew,
	}
	for _, opt := range opts {
		opt(c)
	}
	if !c.limiterSet {
		c.limiter = ratelimit.NewLimiter(ratelimit.LoadConfig(ratelimit.ClientEnvPrefix, ratelimit.BackendEndpointConfigs()))
		c.ownsLimiter = true
	}
	return c, nil
}

// WithTokens returns a client for another session that shares this client's
// HTTP client, rate limiter, circuit breaker and logger. Closing the returned
// client has no effect; close the original instead.
func (c *Client) WithTokens(tokens TokenStore) *Client {
	if tokens == nil {
		tokens = session.NewMemoryStore("")
	}
	return &Client{
		baseURL:     c.baseURL,
		http:        c.http,
		tokens:      tokens,
		limiter:     c.limiter,
		limiterSet:  true,
		breaker:     c.breaker,
		log:         c.log,
		refreshSkew: c.refreshSkew,
	}
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close stops the rate limiter created by New. Limiters passed with
// WithLimiter belong to the caller.
func (c *Client) Close() {
	if c.ownsLimiter && c.limiter != nil {
		c.limiter.Stop()
	}
}

// Authenticated reports whether the client holds an access token.
func (c *Client) Authenticated() bool {
	return c.tokens.AccessToken() != ""
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	auth   bool
}

type response struct {
	status int
	body   []byte
}

// do sends req and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, req request, out any) error {
	if c.limiter != nil {
		if allowed, info := c.limiter.Allow(c.clientID(), req.path, req.method); !allowed {
			return &RateLimitError{Method: req.method, Path: req.path, RetryAfter: info.RetryAfter}
		}
	}

	var payload []byte
	if req.body != nil {
		var err error
		if payload, err = json.Marshal(req.body); err != nil {
			return fmt.Errorf("failed to encode %s %s body: %w", req.method, req.path, err)
		}
	}

	token := ""
	if req.auth {
		var err error
		if token, err = c.freshToken(ctx); err != nil {
			return err
		}
	}

	resp, err := c.send(ctx, req, payload, token)
	if err != nil {
		return err
	}

	if resp.status == http.StatusUnauthorized && req.auth && c.tokens.RefreshToken() != "" {
		c.log.WithFields(logrus.Fields{"method": req.method, "path": req.path}).Debug("access token rejected, refreshing")
		if token, err = c.refresh(ctx, token); err != nil {
			return err
		}
		if resp, err = c.send(ctx, req, payload, token); err != nil {
			return err
		}
	}

	if resp.status < 200 || resp.status > 299 {
		return &APIError{Method: req.method, Path: req.path, StatusCode: resp.status, Detail: parseDetail(resp.status, resp.body)}
	}

	if out == nil || len(resp.body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", req.method, req.path, err)
	}
	return nil
}

// send performs one HTTP round trip through the circuit breaker. 5xx responses
// count as breaker failures but are still returned to the caller.
func (c *Client) send(ctx context.Context, req request, payload []byte, token string) (*response, error) {
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}
	requestID := uuid.NewString()
	log := c.log.WithFields(logrus.Fields{"method": req.method, "path": req.path, "request_id": requestID})

	result, err := c.breaker.Execute(func() (interface{}, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Accept", "application/json")
		httpReq.Header.Set(RequestIDHeader, requestID)
		if payload != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}

		start := time.Now()
		httpResp, err := c.http.Do(httpReq)
		if err != nil {
			return nil, &TransportError{Method: req.method, Path: req.path, Err: err}
		}
		defer func() { _ = httpResp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
		if err != nil {
			return nil, &TransportError{Method: req.method, Path: req.path, Err: fmt.Errorf("failed to read response body: %w", err)}
		}
		log.WithFields(logrus.Fields{"status": httpResp.StatusCode, "duration": time.Since(start)}).Debug("api request")

		resp := &response{status: httpResp.StatusCode, body: data}
		if httpResp.StatusCode >= 500 {
			return resp, &APIError{Method: req.method, Path: req.path, StatusCode: resp.status, Detail: parseDetail(resp.status, data)}
		}
		return resp, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		log.WithError(err).Warn("circuit breaker rejected request")
		return nil, &TransportError{Method: req.method, Path: req.path, Err: err}
	}
	if err != nil {
		return nil, err
	}
	return result.(*response), nil
}

// clientID keys client-side rate limits by user, like the backend does.
func (c *Client) clientID() string {
	if claims, err := session.ParseClaims(c.tokens.AccessToken()); err == nil && claims.Subject != "" {
		return claims.Subject
	}
	return "anonymous"
}

// freshToken returns the access token, refreshing it first when it is about
// to expire.
func (c *Client) freshToken(ctx context.Context) (string, error) {
	token := c.tokens.AccessToken()
	if token == "" {
		return "", ErrNotAuthenticated
	}
	if c.refreshSkew > 0 && c.tokens.RefreshToken() != "" && session.ExpiresWithin(token, c.refreshSkew) {
		refreshed, err := c.refresh(ctx, token)
		if err != nil {
			return "", err
		}
		return refreshed, nil
	}
	return token, nil
}

// refresh exchanges the refresh token for a new pair. Concurrent callers that
// saw the same stale token share one refresh. A rejected refresh token ends
// the session.
func (c *Client) refresh(ctx context.Context, stale string) (string, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if current := c.tokens.AccessToken(); current != "" && current != stale {
		return current, nil
	}

	refreshToken := c.tokens.RefreshToken()
	if refreshToken == "" {
		return "", ErrNotAuthenticated
	}

	var pair types.TokenPair
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/refresh",
		body:   types.RefreshTokenRequest{RefreshToken: refreshToken},
	}, &pair)
	if err != nil {
		if StatusCode(err) == http.StatusUnauthorized {
			c.log.Info("refresh token rejected, clearing session")
			if clearErr := c.tokens.Clear(); clearErr != nil {
				c.log.WithError(clearErr).Warn("failed to clear session")
			}
			return "", fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
		}
		return "", fmt.Errorf("failed to refresh access token: %w", err)
	}

	if err := c.tokens.SetTokens(pair.AccessToken, pair.RefreshToken); err != nil {
		return "", fmt.Errorf("failed to save refreshed tokens: %w", err)
	}
	return pair.AccessToken, nil
}

// runPath validates runID and builds /ads/{run_id}[suffix].
func runPath(runID, suffix string) (string, error) {
	if _, err := uuid.Parse(runID); err != nil {
		return "", fmt.Errorf("%w %q", ErrInvalidRunID, runID)
	}
	return "/ads/" + url.PathEscape(runID) + suffix, nil
}
