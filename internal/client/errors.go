package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrNotAuthenticated is returned when a call needs a session and none exists.
var ErrNotAuthenticated = errors.New("not authenticated: run login first")

// ErrInvalidRunID is returned for run IDs that are not UUIDs.
var ErrInvalidRunID = errors.New("invalid run id")

// APIError is a non-2xx response from the backend.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Detail)
}

// TransportError means the request never produced a response: network
// failures, timeouts and an open circuit breaker.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RateLimitError is returned when a call would exceed the backend's limit for
// its endpoint. No request was sent.
type RateLimitError struct {
	Method     string
	Path       string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s %s: rate limited, retry in %s", e.Method, e.Path, e.RetryAfter.Round(time.Millisecond))
}

// IsTransient reports whether retrying err later may succeed.
func IsTransient(err error) bool {
	var transportErr *TransportError
	var rateErr *RateLimitError
	var apiErr *APIError
	switch {
	case errors.As(err, &transportErr), errors.As(err, &rateErr):
		return true
	case errors.As(err, &apiErr):
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	default:
		return false
	}
}

// StatusCode returns the HTTP status of an APIError in err's chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsUnauthorized reports whether err means the session is missing or rejected.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrNotAuthenticated) || StatusCode(err) == http.StatusUnauthorized
}

// IsNotFound reports whether the backend answered 404.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// fieldError is one entry of a request validation error list.
type fieldError struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// parseDetail extracts the message from an error body. The backend sends
// {"detail": "..."} for handled errors and {"detail": [{loc, msg}]} for
// request validation failures.
func parseDetail(status int, body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Detail) > 0 {
		var msg string
		if err := json.Unmarshal(envelope.Detail, &msg); err == nil {
			return msg
		}

		var fields []fieldError
		if err := json.Unmarshal(envelope.Detail, &fields); err == nil && len(fields) > 0 {
			parts := make([]string, 0, len(fields))
			for _, f := range fields {
				parts = append(parts, formatFieldError(f))
			}
			return strings.Join(parts, "; ")
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 && !strings.HasPrefix(text, "<") {
		return text
	}
	return http.StatusText(status)
}

func formatFieldError(f fieldError) string {
	var loc []string
	for _, part := range f.Loc {
		s := fmt.Sprint(part)
		if s == "body" || s == "query" || s == "path" {
			continue
		}
		loc = append(loc, s)
	}
	if len(loc) == 0 {
		return f.Msg
	}
	return strings.Join(loc, ".") + ": " + f.Msg
}
