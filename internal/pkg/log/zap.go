// nolint:forbidigo // allow usage of the "zap" package
package log

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/keboola/price-tracker/internal/pkg/ctxattr"
)

const componentKey = "component"

// zapLogger is the default implementation of the Logger interface.
type zapLogger struct {
	core      zapcore.Core
	component string
	attrs     []attribute.KeyValue
}

func loggerFromZapCore(core zapcore.Core) *zapLogger {
	return &zapLogger{core: core}
}

func (l *zapLogger) With(attrs ...attribute.KeyValue) Logger {
	clone := *l
	clone.attrs = make([]attribute.KeyValue, 0, len(l.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, l.attrs...)
	clone.attrs = append(clone.attrs, attrs...)
	return &clone
}

// WithComponent appends the component name, nested components are separated by a dot.
func (l *zapLogger) WithComponent(component string) Logger {
	clone := *l
	if clone.component == "" {
		clone.component = component
	} else {
		clone.component = clone.component + "." + component
	}
	return &clone
}

func (l *zapLogger) WithDuration(v time.Duration) Logger {
	return l.With(attribute.String("duration", v.String()))
}

func (l *zapLogger) Debug(ctx context.Context, message string) {
	l.write(ctx, DebugLevel, message)
}

func (l *zapLogger) Info(ctx context.Context, message string) {
	l.write(ctx, InfoLevel, message)
}

func (l *zapLogger) Warn(ctx context.Context, message string) {
	l.write(ctx, WarnLevel, message)
}

func (l *zapLogger) Error(ctx context.Context, message string) {
	l.write(ctx, ErrorLevel, message)
}

func (l *zapLogger) Log(ctx context.Context, level string, message string) {
	l.write(ctx, parseLevel(level), message)
}

func (l *zapLogger) Debugf(ctx context.Context, template string, args ...any) {
	l.write(ctx, DebugLevel, fmt.Sprintf(template, args...))
}

func (l *zapLogger) Infof(ctx context.Context, template string, args ...any) {
	l.write(ctx, InfoLevel, fmt.Sprintf(template, args...))
}

func (l *zapLogger) Warnf(ctx context.Context, template string, args ...any) {
	l.write(ctx, WarnLevel, fmt.Sprintf(template, args...))
}

func (l *zapLogger) Errorf(ctx context.Context, template string, args ...any) {
	l.write(ctx, ErrorLevel, fmt.Sprintf(template, args...))
}

func (l *zapLogger) Logf(ctx context.Context, level string, template string, args ...any) {
	l.write(ctx, parseLevel(level), fmt.Sprintf(template, args...))
}

func (l *zapLogger) Sync() error {
	return l.core.Sync()
}

func (l *zapLogger) write(ctx context.Context, level zapcore.Level, message string) {
	if !l.core.Enabled(level) {
		return
	}

	// Logger attributes take precedence over the context attributes
	var attrs []attribute.KeyValue
	if ctx != nil {
		attrs = ctxattr.Attributes(ctx).ToSlice()
	}
	attrs = append(attrs, l.attrs...)
	set := attribute.NewSet(attrs...)

	fields := make([]zapcore.Field, 0, set.Len()+1)
	if l.component != "" {
		fields = append(fields, zap.String(componentKey, l.component))
	}
	for iter := set.Iter(); iter.Next(); {
		kv := iter.Attribute()
		key := string(kv.Key)
		fields = append(fields, zap.Any(key, kv.Value.AsInterface()))
		message = strings.ReplaceAll(message, "<"+key+">", kv.Value.Emit())
	}

	entry := zapcore.Entry{Level: level, Time: time.Now(), Message: message}
	if ce := l.core.Check(entry, nil); ce != nil {
		ce.Write(fields...)
	}
}

func parseLevel(level string) zapcore.Level {
	if v, err := zapcore.ParseLevel(level); err == nil {
		return v
	}
	return InfoLevel
}
