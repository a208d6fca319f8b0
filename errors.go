package oauth

import (
	"errors"
	"fmt"
	"net/http"
)

// OAuth error codes as constants
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeInvalidScope            = "invalid_scope"
	ErrorCodeInvalidToken            = "invalid_token"
	ErrorCodeUnauthorizedClient      = "unauthorized_client"
	ErrorCodeUnauthorizedRequest     = "unauthorized_request"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeInsufficientScope       = "insufficient_scope"
	ErrorCodeServerError             = "server_error"
	ErrorCodeInvalidArgument         = "invalid_argument"
)

// OAuthError represents an OAuth 2.0 protocol error. Code is the stable
// machine name sent in response bodies and redirect parameters, Status the
// HTTP status the host should respond with.
type OAuthError struct {
	Code        string // OAuth error code (e.g., "invalid_request", "invalid_grant")
	Description string // Human-readable error description
	Status      int    // HTTP status code
	Cause       error  // Underlying error, if any
}

// Error implements the error interface
func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Unwrap returns the underlying cause, if any
func (e *OAuthError) Unwrap() error {
	return e.Cause
}

// NewOAuthError creates a new OAuth error
func NewOAuthError(code, description string, status int) *OAuthError {
	return &OAuthError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// ErrInvalidRequest indicates the request is missing a required parameter or
// is otherwise malformed
func ErrInvalidRequest(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
}

// ErrInvalidClient indicates client authentication failed. The token handler
// raises the status to 401 when credentials came in via the Authorization
// header.
func ErrInvalidClient(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeInvalidClient, desc, http.StatusBadRequest)
}

// ErrInvalidGrant indicates the authorization code or refresh token is
// invalid, expired, or bound to another client
func ErrInvalidGrant(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeInvalidGrant, desc, http.StatusBadRequest)
}

// ErrInvalidScope indicates the requested scope is unknown or exceeds the
// grant
func ErrInvalidScope(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeInvalidScope, desc, http.StatusBadRequest)
}

// ErrInvalidToken indicates the bearer token is invalid or expired
func ErrInvalidToken(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeInvalidToken, desc, http.StatusUnauthorized)
}

// ErrUnauthorizedClient indicates the client is not permitted to use the
// requested grant type
func ErrUnauthorizedClient(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeUnauthorizedClient, desc, http.StatusBadRequest)
}

// ErrUnauthorizedRequest indicates a protected resource was requested without
// credentials
func ErrUnauthorizedRequest(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeUnauthorizedRequest, desc, http.StatusUnauthorized)
}

// ErrUnsupportedGrantType indicates the grant type is not supported
func ErrUnsupportedGrantType(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeUnsupportedGrantType, desc, http.StatusBadRequest)
}

// ErrUnsupportedResponseType indicates the response type is not supported
func ErrUnsupportedResponseType(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeUnsupportedResponseType, desc, http.StatusBadRequest)
}

// ErrAccessDenied indicates the resource owner denied the authorization
// request
func ErrAccessDenied(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeAccessDenied, desc, http.StatusBadRequest)
}

// ErrInsufficientScope indicates the bearer token lacks the required scope
func ErrInsufficientScope(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeInsufficientScope, desc, http.StatusForbidden)
}

// ErrServerError indicates an unexpected internal failure
func ErrServerError(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeServerError, desc, http.StatusServiceUnavailable)
}

// ErrInvalidArgument indicates a programmer error in host configuration, such
// as a model missing a required capability
func ErrInvalidArgument(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeInvalidArgument, desc, http.StatusInternalServerError)
}

// wrapError coerces any error to an *OAuthError. Values already in the
// taxonomy pass through untouched; everything else becomes server_error with
// the original error as cause.
func wrapError(err error) *OAuthError {
	var oe *OAuthError
	if errors.As(err, &oe) {
		return oe
	}
	wrapped := ErrServerError(err.Error())
	wrapped.Cause = err
	return wrapped
}
