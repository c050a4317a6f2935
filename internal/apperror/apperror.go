// Package apperror defines typed application errors that the HTTP layer maps
// to status codes and JSON error bodies.
package apperror

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Kind classifies an application error for HTTP status mapping.
type Kind int

const (
	// KindInternal is an unexpected server-side failure.
	KindInternal Kind = iota
	// KindBadRequest is a malformed or invalid client request.
	KindBadRequest
	// KindUnauthorized is a missing or failed authentication.
	KindUnauthorized
	// KindNotFound is a reference to a resource that does not exist.
	KindNotFound
	// KindConflict is a violation of a uniqueness constraint.
	KindConflict
)

// Error is an application error with a user-facing message and an optional
// wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an application error of the given kind.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// BadRequest creates a KindBadRequest error.
func BadRequest(message string, err error) *Error { return New(KindBadRequest, message, err) }

// Unauthorized creates a KindUnauthorized error.
func Unauthorized(message string, err error) *Error { return New(KindUnauthorized, message, err) }

// NotFound creates a KindNotFound error.
func NotFound(message string, err error) *Error { return New(KindNotFound, message, err) }

// Conflict creates a KindConflict error.
func Conflict(message string, err error) *Error { return New(KindConflict, message, err) }

// Internal creates a KindInternal error.
func Internal(message string, err error) *Error { return New(KindInternal, message, err) }

// HTTPStatus returns the status code for an error. Unknown error types map to
// 500.
func HTTPStatus(err error) int {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the user-facing message for an error. The wrapped cause is
// never exposed to clients.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Internal server error"
}

// Write renders an error as a JSON response body of the form
// {"message": "..."} with the mapped status code.
func Write(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(map[string]string{"message": Message(err)})
}
