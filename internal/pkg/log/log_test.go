package log

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/price-tracker/internal/pkg/ctxattr"
)

func TestZapLogger_Attributes(t *testing.T) {
	t.Parallel()

	logger := NewDebugLogger()
	ctx := ctxattr.ContextWith(context.Background(), attribute.String("node", "ctx-node"), attribute.Int("run", 1))

	logger.
		WithComponent("scraper").
		With(attribute.String("node", "node-1")).
		Infof(ctx, `run "<run>" finished on "%s"`, "<node>")

	logger.WithComponent("tracker").WithComponent("retention").WithDuration(time.Second).Warn(ctx, "slow sweep")

	logger.AssertJSONMessages(t, `
{"level":"info","message":"run \"1\" finished on \"node-1\"","component":"scraper","node":"node-1","run":1}
{"level":"warn","message":"slow sweep","component":"tracker.retention","duration":"1s"}
`)
}

func TestZapLogger_Levels(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	logger := NewDebugLogger()
	logger.Debug(ctx, "debug msg")
	logger.Info(ctx, "info msg")
	logger.Log(ctx, "warn", "warn msg")
	logger.Logf(ctx, "error", "error %s", "msg")
	logger.Log(ctx, "unknown", "fallback msg")

	logger.AssertJSONMessages(t, `
{"level":"debug","message":"debug msg"}
{"level":"info","message":"info msg"}
{"level":"warn","message":"warn msg"}
{"level":"error","message":"error msg"}
{"level":"info","message":"fallback msg"}
`)

	assert.Equal(t, 2, strings.Count(logger.WarnAndErrorMessages(), "\n"))
	assert.Equal(t, 1, strings.Count(logger.ErrorMessages(), "\n"))

	logger.Truncate()
	assert.Empty(t, logger.AllMessages())
}

func TestServiceLogger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	var jsonOut bytes.Buffer
	logger := NewServiceLogger(&jsonOut, false, LogFormatJSON)
	logger.Debug(ctx, "hidden")
	logger.WithComponent("election").Info(ctx, "visible")
	assert.NotContains(t, jsonOut.String(), "hidden")
	assert.NoError(t, CompareJSONMessages(`{"level":"info","message":"visible","component":"election","time":"%s"}`, jsonOut.String()))

	var consoleOut bytes.Buffer
	logger = NewServiceLogger(&consoleOut, true, LogFormatConsole)
	logger.Debug(ctx, "debug line")
	assert.Contains(t, consoleOut.String(), "DEBUG")
	assert.Contains(t, consoleOut.String(), "debug line")
}

func TestCompareJSONMessages(t *testing.T) {
	t.Parallel()

	actual := `
{"level":"info","message":"a"}
{"level":"info","message":"b 123","extra":true}
{"level":"warn","message":"c"}
`
	assert.NoError(t, CompareJSONMessages(`{"message":"b %d"}`+"\n"+`{"level":"warn"}`, actual))
	assert.Error(t, CompareJSONMessages(`{"message":"c"}`+"\n"+`{"message":"a"}`, actual))
	assert.Error(t, CompareJSONMessages(`{invalid`, actual))
}

func TestNewLogFormat(t *testing.T) {
	t.Parallel()

	v, err := NewLogFormat("console")
	assert.NoError(t, err)
	assert.Equal(t, LogFormatConsole, v)

	v, err = NewLogFormat("foo")
	assert.Error(t, err)
	assert.Equal(t, LogFormatJSON, v)
}
