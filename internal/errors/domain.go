package errors

import (
	stderrors "errors"
	"net/http"
)

// Kind classifies why a command was rejected.
type Kind string

const (
	KindNotAuthorized    Kind = "NotAuthorized"
	KindNotFound         Kind = "NotFound"
	KindInvalidState     Kind = "InvalidState"
	KindCapacityExceeded Kind = "CapacityExceeded"
	KindValidation       Kind = "ValidationError"
	KindInternal         Kind = "Internal"
)

// HTTPStatus maps a kind to the response status used by the handlers.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotAuthorized:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState, KindCapacityExceeded:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// DomainError is a command rejection with a machine-readable code.
type DomainError struct {
	Kind    Kind
	Code    string
	Message string
}

// New creates a DomainError. Sentinels built with New compare by identity,
// so errors.Is works through fmt.Errorf("%w") wrapping.
func New(kind Kind, code, message string) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message}
}

func (e *DomainError) Error() string {
	return e.Message
}

// As extracts the DomainError from err, if any.
func As(err error) (*DomainError, bool) {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal when err carries no kind.
func KindOf(err error) Kind {
	if de, ok := As(err); ok {
		return de.Kind
	}
	return KindInternal
}

// Is reports whether err is target. It shadows the standard library name so
// callers importing this package as apierrors do not need both.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
