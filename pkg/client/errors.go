package client

import (
	"errors"

	"github.com/Sternrassler/ps-bridge/pkg/response"
)

// Common errors returned by the client helpers.
var (
	// ErrServiceError is returned when a page carries an error envelope.
	ErrServiceError = errors.New("service error")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// shouldRetry determines if an outcome is worth repeating.
func shouldRetry(status response.Status) bool {
	switch status {
	case response.ConnectionError, response.IOError:
		// Transport failures, the whole exchange is repeated
		return true
	case response.ServerError:
		return true
	default:
		// Client errors, redirects and processing errors repeat identically
		return false
	}
}
