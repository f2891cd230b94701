// Package apperr defines the failure kinds shared by every component boundary.
// Callers classify a failure with KindOf and handle each kind explicitly.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of failure
type Kind string

const (
	Unauthorized            Kind = "unauthorized"
	NotFound                Kind = "not_found"
	Validation              Kind = "validation_error"
	IndexBackendUnavailable Kind = "index_backend_unavailable"
	NotIndexed              Kind = "not_indexed"
	Internal                Kind = "internal_error"
)

// Error is a tagged failure. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a tagged error without a cause
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap tags err with kind. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost tagged error in err's chain.
// Untagged errors are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the user-facing message of a tagged error
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	switch KindOf(err) {
	case Unauthorized:
		return "Unauthorized"
	case NotFound:
		return "Document not found"
	case Validation:
		return "Invalid request"
	case IndexBackendUnavailable:
		return "Index backend unavailable"
	case NotIndexed:
		return "Document is not indexed yet"
	default:
		return "Internal server error"
	}
}

// HTTPStatus maps a kind to the status code used on the API surface
func HTTPStatus(kind Kind) int {
	switch kind {
	case Unauthorized:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case Validation:
		return http.StatusBadRequest
	case IndexBackendUnavailable:
		return http.StatusBadGateway
	case NotIndexed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
