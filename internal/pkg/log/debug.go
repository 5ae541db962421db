// nolint:forbidigo // allow usage of the "zap" package
package log

import (
	"bufio"
	"bytes"
	"strings"
	"sync"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

// DebugLogger captures all messages as JSON lines, it is used in tests.
type DebugLogger interface {
	Logger
	Truncate()
	AllMessages() string
	WarnAndErrorMessages() string
	ErrorMessages() string
	CompareJSONMessages(expected string) error
	AssertJSONMessages(t assert.TestingT, expected string, msgAndArgs ...any) bool
}

type debugLogger struct {
	*zapLogger
	out *memoryWriter
}

type memoryWriter struct {
	lock sync.Mutex
	buf  bytes.Buffer
}

func NewDebugLogger() DebugLogger {
	out := &memoryWriter{}
	encoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		LevelKey:       "level",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	})
	core := zapcore.NewCore(encoder, out, DebugLevel)
	return &debugLogger{zapLogger: loggerFromZapCore(core), out: out}
}

func (l *debugLogger) Truncate() {
	l.out.lock.Lock()
	defer l.out.lock.Unlock()
	l.out.buf.Reset()
}

func (l *debugLogger) AllMessages() string {
	return l.out.String()
}

func (l *debugLogger) WarnAndErrorMessages() string {
	return filterLevels(l.out.String(), "warn", "error")
}

func (l *debugLogger) ErrorMessages() string {
	return filterLevels(l.out.String(), "error")
}

func (l *debugLogger) CompareJSONMessages(expected string) error {
	return CompareJSONMessages(expected, l.AllMessages())
}

func (l *debugLogger) AssertJSONMessages(t assert.TestingT, expected string, msgAndArgs ...any) bool {
	return AssertJSONMessages(t, expected, l.AllMessages(), msgAndArgs...)
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.buf.Write(p)
}

func (w *memoryWriter) Sync() error {
	return nil
}

func (w *memoryWriter) String() string {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.buf.String()
}

func filterLevels(messages string, levels ...string) string {
	var out strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(messages))
	for scanner.Scan() {
		line := scanner.Text()
		for _, level := range levels {
			if strings.Contains(line, `"level":"`+level+`"`) {
				out.WriteString(line)
				out.WriteString("\n")
				break
			}
		}
	}
	return out.String()
}
