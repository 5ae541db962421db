// Package errors wraps the standard "errors" package.
// Each error created by this package remembers the place where it was created,
// the stack trace is printed by the FormatWithStack function.
package errors

import (
	"errors"
	"fmt"
)

// ErrUnsupported re-exports the standard sentinel.
var ErrUnsupported = errors.ErrUnsupported // nolint: gochecknoglobals

type withStack struct {
	error
	trace StackTrace
}

type wrappedError struct {
	msg   string
	cause error
	trace StackTrace
}

func New(msg string) error {
	return &withStack{error: errors.New(msg), trace: callers()}
}

// Errorf supports the %w verb, the same as fmt.Errorf.
func Errorf(format string, a ...any) error {
	return &withStack{error: fmt.Errorf(format, a...), trace: callers()} // nolint: forbidigo
}

// WithStack adds the stack trace to an existing error.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &withStack{error: err, trace: callers()}
}

// Wrap creates a new error with the msg, the cause is available only via Unwrap.
func Wrap(err error, msg string) error {
	return &wrappedError{msg: msg, cause: err, trace: callers()}
}

// Wrapf creates a new error with the formatted msg, the cause is available only via Unwrap.
func Wrapf(err error, format string, a ...any) error {
	return &wrappedError{msg: fmt.Sprintf(format, a...), cause: err, trace: callers()}
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Unwrap(err error) error {
	return errors.Unwrap(err)
}

func (e *withStack) Unwrap() error {
	return e.error
}

func (e *withStack) StackTrace() StackTrace {
	return e.trace
}

func (e *wrappedError) Error() string {
	return e.msg
}

func (e *wrappedError) Unwrap() error {
	return e.cause
}

func (e *wrappedError) StackTrace() StackTrace {
	return e.trace
}
