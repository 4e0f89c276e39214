package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Detail is one violated constraint. Path holds the field path segments.
type Detail struct {
	Message string `json:"message"`
	Path    []any  `json:"path"`
}

// ValidationError carries every structural problem found in a payload.
type ValidationError struct {
	Details []Detail
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 1 {
		return "validation failed: " + e.Details[0].Message
	}
	return fmt.Sprintf("validation failed: %d problems", len(e.Details))
}

// Validation builds a single-detail ValidationError for field.
func Validation(field, format string, args ...any) *ValidationError {
	d := Detail{Message: fmt.Sprintf(format, args...), Path: []any{}}
	if field != "" {
		d.Path = []any{field}
	}
	return &ValidationError{Details: []Detail{d}}
}

// BusinessRuleError is a rejection after the payload was structurally valid.
type BusinessRuleError struct {
	Code    string
	Message string
}

func (e *BusinessRuleError) Error() string { return e.Message }

var (
	ErrInvalidRange   = &BusinessRuleError{Code: "InvalidRange", Message: "End must be after start"}
	ErrAlreadyExpired = &BusinessRuleError{Code: "AlreadyExpired", Message: "End must not be in the past"}
)

type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

type UnauthenticatedError struct {
	Message string
}

func (e *UnauthenticatedError) Error() string { return e.Message }

type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string { return e.Message }

// ConflictError signals a duplicate record or a lost compare-and-swap.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func NotFound(format string, args ...any) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

func Unauthenticated(format string, args ...any) *UnauthenticatedError {
	return &UnauthenticatedError{Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) *ForbiddenError {
	return &ForbiddenError{Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// HTTPStatus maps an error to its response status. Unknown errors are 500.
func HTTPStatus(err error) int {
	var (
		validation *ValidationError
		rule       *BusinessRuleError
		notFound   *NotFoundError
		unauth     *UnauthenticatedError
		forbidden  *ForbiddenError
		conflict   *ConflictError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &rule):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &unauth):
		return http.StatusUnauthorized
	case errors.As(err, &forbidden):
		return http.StatusForbidden
	case errors.As(err, &conflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// IsInternal reports whether err falls outside the taxonomy.
func IsInternal(err error) bool {
	return HTTPStatus(err) == http.StatusInternalServerError
}
