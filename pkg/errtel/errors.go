// errors.go defines the typed errors surfaced across the engine boundary.

package errtel

import (
	"errors"
	"fmt"
)

// Reason is a stable, machine-readable failure reason.
type Reason string

const (
	ReasonInvalidArgument   Reason = "invalid_argument"
	ReasonUnsupportedFormat Reason = "unsupported_format"
	ReasonExportIO          Reason = "export_io"
	ReasonCancelled         Reason = "cancelled"
	ReasonNotFound          Reason = "not_found"
)

// Error is the only error type returned by public engine operations.
type Error struct {
	Reason  Reason
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Reason)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Reason, so the sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Reason == e.Reason
}

// Sentinels for errors.Is.
var (
	ErrInvalidArgument   = &Error{Reason: ReasonInvalidArgument}
	ErrUnsupportedFormat = &Error{Reason: ReasonUnsupportedFormat}
	ErrExportIO          = &Error{Reason: ReasonExportIO}
	ErrCancelled         = &Error{Reason: ReasonCancelled}
	ErrNotFound          = &Error{Reason: ReasonNotFound}
)

func newError(reason Reason, op, message string, err error) *Error {
	return &Error{Reason: reason, Op: op, Message: message, Err: err}
}

// NewError builds an *Error. Subpackages use it so every boundary failure
// carries a Reason.
func NewError(reason Reason, op, message string, err error) *Error {
	return newError(reason, op, message, err)
}

// ReasonOf returns the Reason of the first *Error in err's chain, or "".
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
