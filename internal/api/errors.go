package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotAuthenticated is returned before any network I/O when no token is present
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSessionExpired is returned when the backend rejects the token with 401
	ErrSessionExpired = errors.New("session expired")
	// ErrNetwork matches every *NetworkError
	ErrNetwork = errors.New("network error")
)

// NetworkError is a transport failure where no response was received
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: network error: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// RequestFailedError is a non-2xx response other than 401
type RequestFailedError struct {
	Status int
	Body   []byte
	// Detail is the backend's {"detail": ...} message when it sent one
	Detail string
}

func (e *RequestFailedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Detail)
	}
	body := strings.TrimSpace(string(e.Body))
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Status, body)
}

func newRequestFailed(status int, body []byte) *RequestFailedError {
	e := &RequestFailedError{Status: status, Body: body}
	var payload struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil {
		e.Detail = payload.Detail
	}
	return e
}

// IsRecoverable reports whether err can be shown to the user and retried by
// them, as opposed to requiring a new login.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrNotAuthenticated) {
		return false
	}
	return true
}
