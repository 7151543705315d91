package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrEmptyResponse is returned when the service answered without a usable payload.
// It is transient: the same request usually succeeds on a later attempt.
var ErrEmptyResponse = errors.New("empty response from generation service")

// APIError is a non-2xx answer from the generation service.
type APIError struct {
	StatusCode int
	Body       *Error
	Raw        string
}

func (e *APIError) Error() string {
	if e.Body != nil && e.Body.Message != "" {
		return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Body.Message)
	}
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Raw)
}

func (e *APIError) Unwrap() error {
	if e.Body == nil {
		return nil
	}
	return e.Body
}

// Retryable reports whether the status denotes rate limiting, a timeout or a server fault.
func (e *APIError) Retryable() bool {
	return IsRetryableHTTPStatus(e.StatusCode)
}

func (e *APIError) HTTPStatusCode() int {
	return e.StatusCode
}

// IsRetryableHTTPStatus classifies 408, 429 and 5xx as transient.
func IsRetryableHTTPStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}
