// nolint:forbidigo // allow usage of the "zap" package
package log

import (
	"go.uber.org/zap/zapcore"
)

type CallbackFn func(entry zapcore.Entry, fields []zapcore.Field)

// callbackCore is a zapcore.Core which passes each log entry to a callback.
type callbackCore struct {
	zapcore.LevelEnabler
	callback CallbackFn
	fields   []zapcore.Field
}

// NewCallbackCore is used to bridge a 3rd party zap logger, for example the etcd client logger.
func NewCallbackCore(fn CallbackFn) zapcore.Core {
	return &callbackCore{LevelEnabler: DebugLevel, callback: fn}
}

func NewCallbackLogger(fn CallbackFn) Logger {
	return loggerFromZapCore(NewCallbackCore(fn))
}

func (c *callbackCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return &clone
}

func (c *callbackCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *callbackCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	all := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	all = append(all, c.fields...)
	all = append(all, fields...)
	c.callback(entry, all)
	return nil
}

func (c *callbackCore) Sync() error {
	return nil
}
