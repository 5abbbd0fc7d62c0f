// Package errors defines the application-level error taxonomy shared by
// every pipeline stage, and the HTTP status each kind maps to at the
// webhook and operator endpoints.
package errors

import (
	"fmt"
	"net/http"
)

// ErrorType is one of the error kinds named in the pipeline's error design.
type ErrorType string

const (
	ErrTypeGit             ErrorType = "GIT_ERROR"
	ErrTypeBuildTool       ErrorType = "BUILD_TOOL_ERROR"
	ErrTypeInvalidConfig   ErrorType = "INVALID_CONFIG"
	ErrTypeInvalidName     ErrorType = "INVALID_NAME"
	ErrTypePortExhausted   ErrorType = "PORT_POOL_EXHAUSTED"
	ErrTypeAuxDbExhausted  ErrorType = "AUX_DB_POOL_EXHAUSTED"
	ErrTypeHealthCheck     ErrorType = "HEALTH_CHECK_FAILED"
	ErrTypeSupervisor      ErrorType = "SUPERVISOR_FAILED"
	ErrTypeCancelled       ErrorType = "CANCELLED"
	ErrTypeNotFound        ErrorType = "NOT_FOUND"
	ErrTypeDatabase        ErrorType = "DATABASE_ERROR"
	ErrTypeDnsProvider     ErrorType = "DNS_PROVIDER_ERROR"
	ErrTypeIo              ErrorType = "IO_ERROR"
	ErrTypeInvalidSignature ErrorType = "INVALID_SIGNATURE"
	ErrTypeInvalidPayload  ErrorType = "INVALID_PAYLOAD"
	ErrTypeBuilderUnavailable ErrorType = "BUILDER_UNAVAILABLE"
	ErrTypeConflict        ErrorType = "CONFLICT"
	ErrTypeOther           ErrorType = "OTHER"
)

// KennelError is the application-level error type. It always carries the
// HTTP status its originating kind maps to, so handlers can translate it
// with a single type switch instead of re-deriving a status per call site.
type KennelError struct {
	Type       ErrorType
	Message    string
	Cause      error
	Details    map[string]interface{}
	StatusCode int
}

func (e *KennelError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *KennelError) Unwrap() error {
	return e.Cause
}

func statusFor(t ErrorType) int {
	switch t {
	case ErrTypeNotFound:
		return http.StatusNotFound
	case ErrTypeInvalidSignature:
		return http.StatusUnauthorized
	case ErrTypeInvalidPayload, ErrTypeInvalidConfig, ErrTypeInvalidName:
		return http.StatusBadRequest
	case ErrTypeBuilderUnavailable:
		return http.StatusServiceUnavailable
	case ErrTypeConflict, ErrTypePortExhausted, ErrTypeAuxDbExhausted:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// New creates a KennelError of the given kind with the status it maps to.
func New(t ErrorType, message string) *KennelError {
	return &KennelError{Type: t, Message: message, StatusCode: statusFor(t)}
}

// Wrap creates a KennelError of the given kind around a lower-level cause.
func Wrap(t ErrorType, message string, cause error) *KennelError {
	return &KennelError{Type: t, Message: message, Cause: cause, StatusCode: statusFor(t)}
}

// NewNotFound is a convenience constructor for the common "X with id Y not
// found" message shape used throughout the Store.
func NewNotFound(resource, id string) *KennelError {
	return New(ErrTypeNotFound, fmt.Sprintf("%s '%s' not found", resource, id))
}

// Is reports whether err is a KennelError of the given type.
func Is(err error, t ErrorType) bool {
	var ke *KennelError
	if e, ok := err.(*KennelError); ok {
		ke = e
	} else {
		return false
	}
	return ke.Type == t
}

// StatusCode extracts the HTTP status code to use for err, defaulting to
// 500 for errors that are not a KennelError.
func StatusCode(err error) int {
	if ke, ok := err.(*KennelError); ok {
		return ke.StatusCode
	}
	return http.StatusInternalServerError
}
