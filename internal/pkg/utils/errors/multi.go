package errors

import (
	"strings"
	"sync"
)

type MultiError interface {
	error
	Len() int
	Append(errs ...error)
	AppendWithPrefix(err error, prefix string)
	AppendWithPrefixf(err error, format string, a ...any)
	WrappedErrors() []error
	ErrorOrNil() error
	Unwrap() []error
}

type multiError struct {
	lock   *sync.Mutex
	errors []error
}

// NewMultiError creates an error collection, it is safe for concurrent use.
func NewMultiError() MultiError {
	return &multiError{lock: &sync.Mutex{}}
}

func (e *multiError) Len() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return len(e.errors)
}

func (e *multiError) Append(errs ...error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	for _, err := range errs {
		if err == nil {
			continue
		}
		// Flatten nested collections
		if v, ok := err.(*multiError); ok { // nolint: errorlint
			e.errors = append(e.errors, v.WrappedErrors()...)
		} else {
			e.errors = append(e.errors, err)
		}
	}
}

func (e *multiError) AppendWithPrefix(err error, prefix string) {
	e.Append(PrefixError(err, prefix))
}

func (e *multiError) AppendWithPrefixf(err error, format string, a ...any) {
	e.Append(PrefixErrorf(err, format, a...))
}

func (e *multiError) WrappedErrors() []error {
	e.lock.Lock()
	defer e.lock.Unlock()
	out := make([]error, len(e.errors))
	copy(out, e.errors)
	return out
}

func (e *multiError) Unwrap() []error {
	return e.WrappedErrors()
}

// ErrorOrNil returns nil if the collection is empty,
// the only error if there is exactly one, or the collection itself.
func (e *multiError) ErrorOrNil() error {
	errs := e.WrappedErrors()
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return e
	}
}

func (e *multiError) Error() string {
	errs := e.WrappedErrors()
	if len(errs) == 1 {
		return errs[0].Error()
	}

	var b strings.Builder
	for i, err := range errs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(strings.ReplaceAll(err.Error(), "\n", "\n  "))
	}
	return b.String()
}
