package upload

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// NetworkError is a transport failure: DNS, refused or reset connections,
// timeouts, or a response body that could not be read.
type NetworkError struct {
	Op      string
	Timeout bool
	Err     error
}

func (e *NetworkError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("upload %s: timeout: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("upload %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPStatusError is a response with a status other than 200.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upload: http status %d", e.StatusCode)
	}
	return fmt.Sprintf("upload: http status %d: %s", e.StatusCode, e.Body)
}

// APIError is an explicit failure reported by the image host.
type APIError struct {
	Message string
	Raw     json.RawMessage
}

func (e *APIError) Error() string {
	return "upload rejected: " + e.Message
}

// MalformedResponseError is a 200 response that did not match the expected schema.
type MalformedResponseError struct {
	Reason string
	Body   string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upload: malformed response: %s: %v", e.Reason, e.Err)
	}
	return "upload: malformed response: " + e.Reason
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// Retryable reports whether repeating the same upload might succeed.
func Retryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= 500:
			return true
		}
	}
	return false
}
