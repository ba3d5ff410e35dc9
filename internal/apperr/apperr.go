// Package apperr holds the error taxonomy shared by the interview pipeline
// and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuthRequired blocks an operation before any mutation happens.
	ErrAuthRequired = errors.New("authentication required")
	// ErrAccountSuspended blocks session creation; recovery is a human review.
	ErrAccountSuspended = errors.New("account suspended, contact support for review")
)

// ValidationError reports bad input shape. It is raised before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid is shorthand for a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// UpstreamError carries a third-party failure. Message is the upstream text, unchanged.
type UpstreamError struct {
	Service string
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return e.Message
}

// Upstream builds an UpstreamError for the named service.
func Upstream(service string, status int, message string) error {
	if message == "" {
		message = fmt.Sprintf("%s request failed", service)
		if status > 0 {
			message = fmt.Sprintf("%s request failed with status %d", service, status)
		}
	}
	return &UpstreamError{Service: service, Status: status, Message: message}
}

// StorageError is a non-fatal object storage failure. It is logged and
// swallowed by the recording path.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Code returns a stable machine-readable code for err.
func Code(err error) string {
	var (
		validation *ValidationError
		upstream   *UpstreamError
		storage    *StorageError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthRequired):
		return "auth_required"
	case errors.Is(err, ErrAccountSuspended):
		return "account_suspended"
	case errors.As(err, &validation):
		return "validation_error"
	case errors.As(err, &upstream):
		return "upstream_error"
	case errors.As(err, &storage):
		return "storage_error"
	default:
		return "internal_error"
	}
}

// HTTPStatus maps err onto a response status.
func HTTPStatus(err error) int {
	switch Code(err) {
	case "":
		return http.StatusOK
	case "auth_required":
		return http.StatusUnauthorized
	case "account_suspended":
		return http.StatusForbidden
	case "validation_error":
		return http.StatusBadRequest
	case "upstream_error":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
