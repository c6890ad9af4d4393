package ytsearch

import (
	"fmt"
)

// APIError represents an error response from the YouTube Data API.
type APIError struct {
	Code    int    // HTTP-style error code reported by the API
	Message string // Error message from the API
}

// Error returns the error message.
func (e *APIError) Error() string {
	return fmt.Sprintf("ytsearch: error %d: %s", e.Code, e.Message)
}

// Is checks if the target error is a YouTube API error with the same
// code, so errors.Is() works with *APIError values.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Temporary returns true if the error is transient and the request
// may be retried.
func (e *APIError) Temporary() bool {
	switch e.Code {
	case 500, 503:
		return true
	default:
		return false
	}
}

// Predefined errors for common cases.
var (
	// ErrNoAPIKey is returned when the client is constructed without
	// an API key.
	ErrNoAPIKey = fmt.Errorf("ytsearch: APIKey is required")

	// ErrEmptyQuery is returned when Search is called with a blank
	// query string.
	ErrEmptyQuery = fmt.Errorf("ytsearch: query must not be empty")
)
