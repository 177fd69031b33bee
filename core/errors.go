package core

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrConfiguration      = errors.New("invalid configuration")
	ErrAuthRejected       = errors.New("authentication rejected")
	ErrNetwork            = errors.New("network error")
	ErrDecode             = errors.New("malformed response")
	ErrSessionExpired     = errors.New("session expired")
	ErrSessionUnverified  = errors.New("session not verified")
	ErrVerificationFailed = errors.New("session verification failed")
	ErrRefreshFailed      = errors.New("token refresh failed")
	ErrNoCredential       = errors.New("no stored credential")
	ErrEmptyToken         = errors.New("empty token")

	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenInvalidated   = errors.New("token has been invalidated")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// StatusError is returned for a non-2xx response
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is matches ErrAuthRejected for 401 responses
func (e *StatusError) Is(target error) bool {
	return target == ErrAuthRejected && e.StatusCode == http.StatusUnauthorized
}
