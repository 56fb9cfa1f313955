package identity

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError represents a non-2xx response from the identity backend.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsStatus returns true if err (or any wrapped error) is an HTTPError with
// the given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	return false
}

// IsUnauthorized reports whether err is a 401 from the backend. Callers use
// this to distinguish a rejected token (fail closed) from a transport
// failure (fail open).
func IsUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized)
}

// Detail returns the backend's error message when err carries one, or the
// plain error text otherwise. Exchange failures are classified from this.
func Detail(err error) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
