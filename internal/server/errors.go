package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/ad-dashboard/internal/client"
	"github.com/jonathan/ad-dashboard/internal/tracker"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validationErr *ErrValidation
		clientValErr  *client.ValidationError
		apiErr        *client.APIError
		rateErr       *client.RateLimitError
		transportErr  *client.TransportError
		finalizeErr   *tracker.FinalizationError
	)

	switch {
	case errors.As(err, &validationErr), errors.As(err, &clientValErr), errors.Is(err, client.ErrInvalidRunID):
		return http.StatusBadRequest
	case errors.Is(err, client.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNoHistory):
		return http.StatusNotFound
	case errors.As(err, &rateErr):
		return http.StatusTooManyRequests
	case errors.As(err, &finalizeErr):
		return http.StatusBadGateway
	case errors.As(err, &apiErr):
		// Backend client errors pass through; backend failures are a bad gateway.
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return apiErr.StatusCode
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &transportErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage returns the text shown to callers for err. Backend details
// are passed through; internal errors are not.
func errorMessage(err error) string {
	var (
		apiErr       *client.APIError
		clientValErr *client.ValidationError
		finalizeErr  *tracker.FinalizationError
	)
	switch {
	case errors.As(err, &finalizeErr):
		return finalizeErr.Error()
	case errors.As(err, &clientValErr):
		return clientValErr.Message
	case errors.As(err, &apiErr):
		return apiErr.Detail
	case HTTPStatus(err) == http.StatusInternalServerError:
		return "internal server error"
	default:
		return err.Error()
	}
}
