package apperror

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("Validation Error")
	ErrConflict       = errors.New("conflict")
	ErrForbidden      = errors.New("forbidden")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrUpstream       = errors.New("upstream failure")
	ErrPartialFailure = errors.New("partial failure")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Status  int    // Optional: HTTP status reported by an upstream service
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// InvalidCredentials is returned when a username/password pair does not match.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: "Invalid Credentials",
	}
}

// Upstream wraps a failed call to the document store or the movie catalog.
// status is the HTTP status the upstream answered with (0 if the call never
// got a response).
func Upstream(service string, status int, detail string) *AppError {
	msg := fmt.Sprintf("%s responded with status %d", service, status)
	if detail != "" {
		msg += ": " + detail
	}
	return &AppError{
		Err:     ErrUpstream,
		Message: msg,
		Status:  status,
	}
}

// PartialFailure reports a batch write where some documents were rejected.
func PartialFailure(resource string, failedIDs []string) *AppError {
	return &AppError{
		Err: ErrPartialFailure,
		Message: fmt.Sprintf("%d %s document(s) failed to update: %s",
			len(failedIDs), resource, strings.Join(failedIDs, ", ")),
	}
}
