package errors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cause := errors.New("cause")
	permanent := errors.PrefixError(NewPermanentError(cause), "fetch failed")
	transient := NewTransientError(cause)

	assert.True(t, IsPermanent(permanent))
	assert.False(t, IsTransient(permanent))
	assert.True(t, IsTransient(transient))
	assert.True(t, IsTransient(NewConnectionError(cause)))
	assert.True(t, IsTransient(cause))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(nil))
	assert.True(t, errors.Is(transient, cause))
	assert.Equal(t, "cause", transient.Error())
}

func TestErrorName(t *testing.T) {
	t.Parallel()

	cause := errors.New("cause")
	assert.Equal(t, "permanent", ErrorName(errors.PrefixError(NewPermanentError(cause), "prefix")))
	assert.Equal(t, "transient", ErrorName(NewTransientError(cause)))
	assert.Equal(t, "connection", ErrorName(NewConnectionError(cause)))
	assert.Equal(t, "sessionExpired", ErrorName(NewSessionExpiredError("123")))
	assert.Equal(t, "timeout", ErrorName(errors.Errorf("fetch: %w", context.DeadlineExceeded)))
	assert.Equal(t, "unknown", ErrorName(cause))
	assert.Equal(t, `coordination session "123" expired`, NewSessionExpiredError("123").Error())
}
