package servicectx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/price-tracker/internal/pkg/log"
	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

func TestProcess_Add(t *testing.T) {
	t.Parallel()

	logger := log.NewDebugLogger()
	proc, err := New(WithLogger(logger), WithUniqueID("my-node"))
	require.NoError(t, err)

	ended := make(chan string, 2)
	proc.Add(func(ctx context.Context, _ ShutdownFn) {
		<-ctx.Done()
		ended <- "end1"
	})
	proc.Add(func(ctx context.Context, shutdown ShutdownFn) {
		shutdown(ctx, errors.New("operation failed"))
		<-ctx.Done()
		ended <- "end2"
	})
	proc.OnShutdown(func(ctx context.Context) {
		logger.Info(ctx, "onShutdown1")
	})
	proc.OnShutdown(func(ctx context.Context) {
		logger.Info(ctx, "onShutdown2")
	})
	proc.OnShutdown(func(ctx context.Context) {
		logger.Info(ctx, "onShutdown3")
	})
	proc.WaitForShutdown()

	assert.Len(t, ended, 2)
	assert.Error(t, proc.Ctx().Err())
	logger.AssertJSONMessages(t, `
{"level":"info","message":"process unique id \"my-node\"","component":"process"}
{"level":"info","message":"exiting (operation failed)","component":"process"}
{"level":"info","message":"onShutdown3"}
{"level":"info","message":"onShutdown2"}
{"level":"info","message":"onShutdown1"}
{"level":"info","message":"exited","component":"process"}
`)
}

func TestProcess_ShutdownTimeout(t *testing.T) {
	t.Parallel()

	logger := log.NewDebugLogger()
	proc, err := New(WithLogger(logger), WithShutdownTimeout(50*time.Millisecond))
	require.NoError(t, err)

	release := make(chan struct{})
	defer close(release)
	proc.Add(func(ctx context.Context, _ ShutdownFn) {
		<-release
	})

	proc.Shutdown(context.Background(), errors.New("stop"))
	proc.Shutdown(context.Background(), errors.New("ignored"))
	proc.WaitForShutdown()

	logger.AssertJSONMessages(t, `
{"level":"info","message":"exiting (stop)"}
{"level":"warn","message":"exited, shutdown timeout 50ms exceeded"}
`)
	assert.NotContains(t, logger.AllMessages(), "ignored")
}

func TestProcess_OnShutdownAfterTermination(t *testing.T) {
	t.Parallel()

	logger := log.NewDebugLogger()
	proc, err := New(WithLogger(logger))
	require.NoError(t, err)
	assert.NotEmpty(t, proc.UniqueID())

	proc.Shutdown(context.Background(), errors.New("stop"))
	proc.WaitForShutdown()

	proc.OnShutdown(func(ctx context.Context) {})
	logger.AssertJSONMessages(t, `{"level":"error","message":"cannot register OnShutdown callback: the process is terminating"}`)
}
