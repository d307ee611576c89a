package webauth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/lingoleap/webauth/store"
)

var (
	// ErrUnauthorized matches a 401 response from the platform.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrHTTPStatus matches every *StatusError.
	ErrHTTPStatus = errors.New("http error status")
	// ErrInvalidCredentials is returned by Login for an empty token or a profile without id.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidAuthResponse is returned when the login endpoint answers without a token or user.
	ErrInvalidAuthResponse = errors.New("invalid auth response")
	// ErrStoreUnavailable wraps token store backend failures.
	ErrStoreUnavailable = store.ErrStoreUnavailable
	// ErrStoreRequired is returned by Build when no token store was supplied.
	ErrStoreRequired = errors.New("token store required")
	// ErrSessionRequired is returned by NewClient for a nil session.
	ErrSessionRequired = errors.New("session required")
	// ErrNavigatorRequired is returned by NewClient for a nil navigator.
	ErrNavigatorRequired = errors.New("navigator required")
	// ErrSessionClosed is returned by mutations after Close.
	ErrSessionClosed = errors.New("session closed")
	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("invalid config")
)

// StatusError is returned by the client for every response with status >= 400.
// Code and Message are filled when the body carries them.
type StatusError struct {
	StatusCode int
	Method     string
	Path       string
	RequestID  string
	Code       string
	Message    string
	Body       []byte
}

func (e *StatusError) Error() string {
	text := http.StatusText(e.StatusCode)
	if e.Message != "" {
		text = e.Message
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, text)
}

// Is reports ErrHTTPStatus for every status error and ErrUnauthorized for 401.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrHTTPStatus:
		return true
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	}
	return false
}
