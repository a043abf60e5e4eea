package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound         = errors.New("resource not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrValidation       = errors.New("validation failed")
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrUpstreamTimeout  = errors.New("upstream timeout")
	ErrCanceled         = errors.New("canceled")
	ErrUpstream         = errors.New("upstream error")
	ErrMalformedVerdict = errors.New("malformed verdict")
	ErrDuplicateJob     = errors.New("duplicate job")
	ErrInternal         = errors.New("internal error")
	ErrCache            = errors.New("cache error")
)

// Stable codes carried in AppError.Code and in API error bodies.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	CodeUpstreamTimeout  = "UPSTREAM_TIMEOUT"
	CodeCanceled         = "CANCELED"
	CodeUpstream         = "UPSTREAM_ERROR"
	CodeMalformedVerdict = "MALFORMED_VERDICT"
	CodeDuplicateJob     = "DUPLICATE_JOB"
	CodeInternal         = "INTERNAL_ERROR"
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func NewValidationError(message string) *AppError {
	return NewAppError(CodeValidation, message, ErrValidation)
}

// NewUpstreamError wraps a collaborator failure. Deadline expiry is
// reclassified as a timeout and cancellation as CANCELED so callers only
// need errors.Is.
func NewUpstreamError(service string, cause error) *AppError {
	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, ErrUpstreamTimeout) {
		return NewTimeoutError(service, cause)
	}
	if errors.Is(cause, context.Canceled) || errors.Is(cause, ErrCanceled) {
		return NewCanceledError(service, cause)
	}
	return NewAppError(CodeUpstream, service+" request failed", errors.Join(ErrUpstream, cause))
}

func NewTimeoutError(service string, cause error) *AppError {
	return NewAppError(CodeUpstreamTimeout, service+" request timed out", errors.Join(ErrUpstreamTimeout, cause))
}

func NewCanceledError(service string, cause error) *AppError {
	return NewAppError(CodeCanceled, service+" was cancelled", errors.Join(ErrCanceled, cause))
}

// NewContextError classifies a done context: deadline expiry is a timeout,
// anything else a cancellation.
func NewContextError(service string, cause error) *AppError {
	if errors.Is(cause, context.DeadlineExceeded) {
		return NewTimeoutError(service, cause)
	}
	return NewCanceledError(service, cause)
}

func NewMalformedVerdict(message string, cause error) *AppError {
	if cause == nil {
		return NewAppError(CodeMalformedVerdict, message, ErrMalformedVerdict)
	}
	return NewAppError(CodeMalformedVerdict, message, errors.Join(ErrMalformedVerdict, cause))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Code returns the stable code for err.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != "" {
		return appErr.Code
	}
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidInput):
		return CodeValidation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrPayloadTooLarge):
		return CodePayloadTooLarge
	case errors.Is(err, ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		return CodeUpstreamTimeout
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return CodeCanceled
	case errors.Is(err, ErrUpstream):
		return CodeUpstream
	case errors.Is(err, ErrMalformedVerdict):
		return CodeMalformedVerdict
	case errors.Is(err, ErrDuplicateJob):
		return CodeDuplicateJob
	default:
		return CodeInternal
	}
}

// HTTPStatus maps the error taxonomy onto HTTP status codes.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrDuplicateJob):
		return http.StatusConflict
	case errors.Is(err, ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUpstream), errors.Is(err, ErrMalformedVerdict):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage returns the message intended for API callers.
func UserMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
