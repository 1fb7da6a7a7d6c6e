// Package status defines the error-kind/cause vocabulary shared by every
// PubSub control-plane operation.
package status

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Code is a closed enum of the error kinds an operation may return.
type Code int

const (
	// OK is not itself ever returned as an error; it is the cause stamped
	// on a successful state transition.
	OK Code = iota
	InvalidArgument
	NotFound
	OutOfMemory
	NotSupported
	ConfigurationError
	InternalError
	ResourceUnavailable
	ConnectionClosed
	Shutdown
)

func (c Code) String() string {
	switch c {
	case OK:
		return "Good"
	case InvalidArgument:
		return "BadInvalidArgument"
	case NotFound:
		return "BadNotFound"
	case OutOfMemory:
		return "BadOutOfMemory"
	case NotSupported:
		return "BadNotSupported"
	case ConfigurationError:
		return "BadConfigurationError"
	case InternalError:
		return "BadInternalError"
	case ResourceUnavailable:
		return "BadResourceUnavailable"
	case ConnectionClosed:
		return "BadConnectionClosed"
	case Shutdown:
		return "BadShutdown"
	default:
		return "BadUnknown"
	}
}

// Error is a status code with an optional wrapped cause. It is the type
// every control-plane operation returns in place of a bare error, so
// callers (and the user state-change callback) can recover the cause
// without string matching.
type Error struct {
	code  Code
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.code, e.cause)
	}
	return e.code.String()
}

func (e *Error) Unwrap() error { return e.cause }

// CodeOf returns the status code carried by err, or InternalError if err
// is not a *Error (should not happen for control-plane operations).
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.code
	}
	return InternalError
}

// New creates a status error carrying code, with msg as its cause.
func New(code Code, msg string) *Error {
	return &Error{code: code, cause: errors.NewWithDepth(1, msg)}
}

// Wrap attaches a code to an underlying cause, preserving its stack trace
// via cockroachdb/errors the way the rest of the pack wraps Pebble errors.
func Wrap(code Code, cause error, msg string) *Error {
	if cause == nil {
		return New(code, msg)
	}
	return &Error{code: code, cause: errors.WrapWithDepth(1, cause, msg)}
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.code == code
	}
	return false
}
