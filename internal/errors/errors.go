package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// DomainError represents a domain-specific error with a code and message
type DomainError struct {
	Code    string
	Message string
	Err     error // underlying error for wrapping
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is and errors.As
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is lets a wrapped sentinel match its base by code
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with domain error context
func WrapError(domainErr *DomainError, err error) *DomainError {
	return &DomainError{
		Code:    domainErr.Code,
		Message: domainErr.Message,
		Err:     err,
	}
}

// Predefined domain errors
var (
	// Validation and conflicts
	ErrValidation         = NewDomainError("VALIDATION_ERROR", "invalid input")
	ErrUniquenessConflict = NewDomainError("UNIQUENESS_CONFLICT", "email, username or mobile already in use")

	// Authentication. Invalid credentials is deliberately shared between
	// unknown identifier and wrong password so callers cannot enumerate users.
	ErrInvalidCredentials = NewDomainError("INVALID_CREDENTIALS", "invalid credentials")
	ErrAccountDisabled    = NewDomainError("ACCOUNT_DISABLED", "account is disabled")
	ErrUnauthorized       = NewDomainError("UNAUTHORIZED", "unauthorized")
	ErrForbidden          = NewDomainError("FORBIDDEN", "insufficient privilege")

	// Tokens
	ErrInvalidToken   = NewDomainError("INVALID_TOKEN", "invalid or expired token")
	ErrTokenExpired   = NewDomainError("TOKEN_EXPIRED", "token has expired")
	ErrTokenRevoked   = NewDomainError("TOKEN_REVOKED", "token has been revoked")
	ErrWrongTokenKind = NewDomainError("WRONG_TOKEN_KIND", "unexpected token kind")

	// User lookups
	ErrUserNotFound = NewDomainError("USER_NOT_FOUND", "user not found")

	// System errors
	ErrInternal           = NewDomainError("INTERNAL_ERROR", "internal server error")
	ErrServiceUnavailable = NewDomainError("SERVICE_UNAVAILABLE", "service unavailable")
)

// IsDomainError checks if an error is a domain error
func IsDomainError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr)
}

// GetDomainError extracts the domain error from an error
func GetDomainError(err error) *DomainError {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// ToHTTPStatus maps domain errors to HTTP status codes
// This should only be used in the handler/presentation layer
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErrorToHTTPStatus(domainErr)
	}

	// Default to internal server error for unknown errors
	return http.StatusInternalServerError
}

func domainErrorToHTTPStatus(err *DomainError) int {
	switch err.Code {
	// 400 Bad Request
	case "VALIDATION_ERROR":
		return http.StatusBadRequest

	// 401 Unauthorized
	case "UNAUTHORIZED", "INVALID_CREDENTIALS", "INVALID_TOKEN",
		"TOKEN_EXPIRED", "TOKEN_REVOKED", "WRONG_TOKEN_KIND":
		return http.StatusUnauthorized

	// 403 Forbidden
	case "ACCOUNT_DISABLED", "FORBIDDEN":
		return http.StatusForbidden

	// 404 Not Found
	case "USER_NOT_FOUND":
		return http.StatusNotFound

	// 409 Conflict
	case "UNIQUENESS_CONFLICT":
		return http.StatusConflict

	// 503 Service Unavailable
	case "SERVICE_UNAVAILABLE":
		return http.StatusServiceUnavailable

	// 500 Internal Server Error (default)
	default:
		return http.StatusInternalServerError
	}
}

// GetErrorMessage safely extracts error message without leaking wrapped
// internal detail for 5xx errors
func GetErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}

	return err.Error()
}
