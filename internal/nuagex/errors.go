package nuagex

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrWaitTimeout is returned when a lab does not reach the awaited state
// within the poll budget.
var ErrWaitTimeout = errors.New("timed out waiting for lab")

// AuthError is returned when credentials are missing or rejected.
type AuthError struct {
	Username string
	// Reason is set for locally detected problems such as a missing field.
	Reason string
}

func (e *AuthError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("Invalid NuageX credentials (username=%s, password=*****)", e.Username)
}

// APIError is a non-2xx response from the NuageX API.
type APIError struct {
	StatusCode int
	Body       []byte
	// Message is taken from the response body when it carries one.
	Message string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("HTTP error %d %s", e.StatusCode, msg)
}

func newAPIError(statusCode int, body []byte) *APIError {
	e := &APIError{StatusCode: statusCode, Body: body}
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil {
		e.Message = parsed.Message
		if e.Message == "" {
			e.Message = parsed.Error
		}
	}
	return e
}

// IsNotFound reports whether err is an API 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
