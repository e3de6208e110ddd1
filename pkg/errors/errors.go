// Package errors defines the service-wide error taxonomy. Engines wrap these
// sentinels so callers can classify failures with errors.Is instead of
// matching on message text.
package errors

import (
	"errors"
	"net/http"
)

var (
	// ErrConfiguration marks a fatal startup misconfiguration, such as a
	// missing index-table identifier. Never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrFieldPathMissing reports that the counter mapping for a slot has
	// not been bootstrapped yet. This is the only storage failure the
	// update engine retries, exactly once, after initializing the mapping.
	ErrFieldPathMissing = errors.New("index field path missing")

	ErrInvalidInput = errors.New("invalid input")
	ErrStorage      = errors.New("storage error")
)

// HTTPStatusCode maps a classified error onto the response status.
func HTTPStatusCode(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrStorage), errors.Is(err, ErrFieldPathMissing):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
