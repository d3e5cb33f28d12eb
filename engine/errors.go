package engine

import (
	"fmt"

	"github.com/pkg/errors"
)

type ErrorKind int

const (
	ErrorKindInvalidInput ErrorKind = iota
	ErrorKindInternal
	ErrorKindBinder
	ErrorKindCatalog
	ErrorKindNotImplemented
	ErrorKindConnection
	ErrorKindInterrupt
)

func (kind ErrorKind) String() string {
	switch kind {
	case ErrorKindInvalidInput:
		return "Invalid Input Error"
	case ErrorKindInternal:
		return "INTERNAL Error"
	case ErrorKindBinder:
		return "Binder Error"
	case ErrorKindCatalog:
		return "Catalog Error"
	case ErrorKindNotImplemented:
		return "Not implemented Error"
	case ErrorKindConnection:
		return "Connection Error"
	case ErrorKindInterrupt:
		return "INTERRUPT Error"
	}
	return "Error"
}

// Error is the engine-native failure every table function error surfaces as.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any *Error of the same kind, so errors.Is(err, &Error{Kind: ...}) works.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

func NewError(kind ErrorKind, format string, args ...interface{}) error {
	return errors.WithStack(&Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	})
}

func InvalidInputErrorf(format string, args ...interface{}) error {
	return NewError(ErrorKindInvalidInput, format, args...)
}

func InternalErrorf(format string, args ...interface{}) error {
	return NewError(ErrorKindInternal, format, args...)
}

func BinderErrorf(format string, args ...interface{}) error {
	return NewError(ErrorKindBinder, format, args...)
}

func CatalogErrorf(format string, args ...interface{}) error {
	return NewError(ErrorKindCatalog, format, args...)
}

func NotImplementedErrorf(format string, args ...interface{}) error {
	return NewError(ErrorKindNotImplemented, format, args...)
}

// IsKind reports whether err, or anything it wraps, is an engine error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var engineErr *Error
	if !errors.As(err, &engineErr) {
		return false
	}
	return engineErr.Kind == kind
}

// ErrConnectionClosed is returned by every operation on a closed connection.
var ErrConnectionClosed = &Error{Kind: ErrorKindConnection, Message: "Connection already closed!"}
