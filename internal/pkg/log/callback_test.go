package log

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestCallbackLogger(t *testing.T) {
	t.Parallel()

	var lock sync.Mutex
	var messages []string
	var keys []string
	logger := NewCallbackLogger(func(entry zapcore.Entry, fields []zapcore.Field) {
		lock.Lock()
		defer lock.Unlock()
		messages = append(messages, entry.Level.String()+" "+entry.Message)
		for _, f := range fields {
			keys = append(keys, f.Key)
		}
	})

	ctx := context.Background()
	logger.With(attribute.String("foo", "bar")).Info(ctx, "info <foo>")
	logger.WithComponent("etcd").Debug(ctx, "debug")

	assert.Equal(t, []string{"info info bar", "debug debug"}, messages)
	assert.Equal(t, []string{"foo", "component"}, keys)
}

func TestCallbackCore_With(t *testing.T) {
	t.Parallel()

	var fields []zapcore.Field
	core := NewCallbackCore(func(_ zapcore.Entry, f []zapcore.Field) {
		fields = f
	})

	zap.New(core).With(zap.String("a", "1")).Info("msg", zap.String("b", "2"))
	if assert.Len(t, fields, 2) {
		assert.Equal(t, "a", fields[0].Key)
		assert.Equal(t, "b", fields[1].Key)
	}
}
