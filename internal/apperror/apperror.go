// Package apperror defines the error taxonomy shared by every layer.
//
// The service layer returns *AppError values wrapping one of the sentinels
// below. The HTTP layer never inspects messages, only sentinels:
//
//	errors.Is(err, apperror.ErrConflict)  → 400 duplicate_email
//	errors.Is(err, apperror.ErrThrottled) → 429 throttled
//
// Anything that is not an *AppError is treated as an internal failure.
package apperror

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("Validation Error")
	ErrConflict       = errors.New("conflict")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpired        = errors.New("expired")
	ErrAuthentication = errors.New("authentication failed")
	ErrThrottled      = errors.New("throttled")
)

// Stable machine-readable codes carried in error responses.
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeInactiveAccount    = "inactive_account"
	CodeUnauthorized       = "unauthorized"
)

type AppError struct {
	Err     error  // sentinel, matched with errors.Is
	Code    string // optional: overrides the code derived from Err
	Message string // Human-readable error message
	Field   string // Optional: field causing the error

	// Fields holds every field-scoped message when more than one field failed.
	Fields map[string][]string

	// RetryAfter is set on throttled errors.
	RetryAfter time.Duration
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// FieldErrors returns the field-scoped messages, folding the single Field
// into the map form so callers only deal with one shape.
func (e *AppError) FieldErrors() map[string][]string {
	if len(e.Fields) > 0 {
		return e.Fields
	}
	if e.Field != "" {
		return map[string][]string{e.Field: {e.Message}}
	}
	return nil
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

// ValidationFields builds a validation error carrying several field messages.
// Message is taken from the first field in sorted order so it is stable.
func ValidationFields(fields map[string][]string) *AppError {
	msg := "invalid input"
	for _, k := range sortedKeys(fields) {
		if len(fields[k]) > 0 {
			msg = fields[k][0]
			break
		}
	}
	return &AppError{
		Err:     ErrValidation,
		Message: msg,
		Fields:  fields,
	}
}

// Conflict reports a uniqueness violation on a field.
func Conflict(field, message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
		Field:   field,
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

func InvalidToken(message string) *AppError {
	return &AppError{
		Err:     ErrInvalidToken,
		Message: message,
	}
}

func Expired(message string) *AppError {
	return &AppError{
		Err:     ErrExpired,
		Message: message,
	}
}

// Authentication returns a credential failure with one of the Code* constants.
func Authentication(code, message string) *AppError {
	return &AppError{
		Err:     ErrAuthentication,
		Code:    code,
		Message: message,
	}
}

func Throttled(retryAfter time.Duration) *AppError {
	return &AppError{
		Err:        ErrThrottled,
		Message:    "Request was throttled. Please try again later.",
		RetryAfter: retryAfter,
	}
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
