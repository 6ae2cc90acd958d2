// Package apperr defines the typed business-rule errors shared by all Grove
// services. Handlers map each kind to a fixed HTTP status; services never
// leak raw database errors across the presentation boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a business-rule failure.
type Kind int

const (
	// Internal is an unexpected lower-layer failure (persistence down,
	// driver error). Never retried by the business layer.
	Internal Kind = iota
	// NotFound means the referenced entity does not exist, or the caller
	// has no access to it (access failures are deliberately
	// indistinguishable from absence).
	NotFound
	// Conflict covers duplicate slugs/tag names, cyclic parent chains,
	// re-acting on terminal invitations, and single-owner violations.
	Conflict
	// Forbidden means the caller's role rank is insufficient.
	Forbidden
	// Validation is malformed input caught at the presentation boundary.
	Validation
	// Expired marks an invitation past its expiry.
	Expired
)

// Error is a classified business error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// NotFoundf returns a NotFound error with a formatted message.
func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: NotFound, Msg: fmt.Sprintf(format, args...)}
}

// Conflictf returns a Conflict error with a formatted message.
func Conflictf(format string, args ...interface{}) *Error {
	return &Error{Kind: Conflict, Msg: fmt.Sprintf(format, args...)}
}

// Forbiddenf returns a Forbidden error with a formatted message.
func Forbiddenf(format string, args ...interface{}) *Error {
	return &Error{Kind: Forbidden, Msg: fmt.Sprintf(format, args...)}
}

// Validationf returns a Validation error with a formatted message.
func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: Validation, Msg: fmt.Sprintf(format, args...)}
}

// Expiredf returns an Expired error with a formatted message.
func Expiredf(format string, args ...interface{}) *Error {
	return &Error{Kind: Expired, Msg: fmt.Sprintf(format, args...)}
}

// Internalf wraps an unexpected lower-layer error.
func Internalf(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: Internal, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from err, or Internal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error kind to its external status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Forbidden:
		return http.StatusForbidden
	case Validation:
		return http.StatusBadRequest
	case Expired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the stable machine-readable code for an error kind.
func Code(err error) string {
	switch KindOf(err) {
	case NotFound:
		return "NOT_FOUND"
	case Conflict:
		return "CONFLICT"
	case Forbidden:
		return "FORBIDDEN"
	case Validation:
		return "VALIDATION_ERROR"
	case Expired:
		return "EXPIRED"
	default:
		return "INTERNAL_ERROR"
	}
}
