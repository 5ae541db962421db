// nolint:forbidigo // allow usage of the "zap" package
package log

import (
	"io"

	"go.uber.org/zap/zapcore"
)

// NewServiceLogger creates a logger for a long-running service process.
// Debug messages are written only if the debug is enabled.
func NewServiceLogger(w io.Writer, debug bool, format LogFormat) Logger {
	level := InfoLevel
	if debug {
		level = DebugLevel
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var encoder zapcore.Encoder
	if format == LogFormatConsole {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	return loggerFromZapCore(zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(w)), level))
}

func NewNopLogger() Logger {
	return loggerFromZapCore(zapcore.NewNopCore())
}
