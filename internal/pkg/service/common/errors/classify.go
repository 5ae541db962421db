package errors

import (
	"context"

	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

type errorWithName interface {
	ErrorName() string
}

// IsPermanent returns true if the error chain contains a PermanentError.
func IsPermanent(err error) bool {
	var permanentErr PermanentError
	return errors.As(err, &permanentErr)
}

// IsTransient returns true for all errors except permanent and cancellation errors.
// An unclassified error is transient.
func IsTransient(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// ErrorName returns the name of the first named error in the chain, or "unknown".
func ErrorName(err error) string {
	var named errorWithName
	if errors.As(err, &named) {
		return named.ErrorName()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "unknown"
}
