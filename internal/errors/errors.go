package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Common error types for the issuer and the broker
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrAuthentication     = errors.New("authentication failed")

	// Token errors
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")

	// Client errors
	ErrInvalidClient = errors.New("invalid client")
	ErrInvalidScope  = errors.New("invalid scope")

	// Authorization errors
	ErrInvalidGrant             = errors.New("invalid grant")
	ErrUnsupportedGrantType     = errors.New("unsupported grant type")
	ErrUnsupportedResponseType  = errors.New("unsupported response type")
	ErrInvalidRequest           = errors.New("invalid request")
	ErrAuthorization            = errors.New("insufficient scope")
	ErrInvalidAuthorizationCode = errors.New("invalid authorization code")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrNoActiveSession = errors.New("no active session")

	// Transport errors
	ErrNetwork           = errors.New("network error")
	// ErrIssuerUnavailable marks a network error from a request the issuer never processed (dial failure or 5xx)
	ErrIssuerUnavailable = errors.New("issuer unavailable")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

// AuthorizationError reports the scopes an operation needed but the session lacked.
// It matches ErrAuthorization with errors.Is.
type AuthorizationError struct {
	Operation string
	Missing   []string
	Granted   []string
}

func (e *AuthorizationError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("access denied for %s", e.Operation)
	}
	return fmt.Sprintf("access denied: user lacks required scope(s) [%s] for %s, user has [%s]",
		strings.Join(e.Missing, ", "), e.Operation, strings.Join(e.Granted, ", "))
}

func (e *AuthorizationError) Is(target error) bool {
	return target == ErrAuthorization
}

// APIError is a non-auth failure returned by a downstream service
type APIError struct {
	StatusCode int
	Message    string
	// Err is the underlying cause, such as ErrNetwork, when there was no response
	Err error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is a passthrough to the standard library so callers only need one errors import
func New(text string) error {
	return errors.New(text)
}
