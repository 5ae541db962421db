// Package servicectx provides unique ID for a service process and support for the graceful shutdown.
package servicectx

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/price-tracker/internal/pkg/idgenerator"
	"github.com/keboola/price-tracker/internal/pkg/log"
	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

const DefaultShutdownTimeout = 5 * time.Second

type Process struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   log.Logger
	wg       *sync.WaitGroup
	uniqueID string
	timeout  time.Duration

	shutdownOnce *sync.Once
	done         chan struct{}

	lock        *sync.Mutex
	terminating bool
	onShutdown  []OnShutdownFn
}

type Option func(c *config)

// OnShutdownFn is a shutdown callback, the ctx is limited by the shutdown timeout.
type OnShutdownFn func(ctx context.Context)

// ShutdownFn stops the Process with the error as the reason.
type ShutdownFn func(ctx context.Context, err error)

type config struct {
	uniqueID        string
	logger          log.Logger
	shutdownTimeout time.Duration
}

// WithUniqueID sets unique ID of the service process.
// By default, it is generated from the hostname and PID.
func WithUniqueID(v string) Option {
	return func(c *config) {
		c.uniqueID = v
	}
}

func WithLogger(v log.Logger) Option {
	return func(c *config) {
		c.logger = v
	}
}

// WithShutdownTimeout limits the total time of the shutdown callbacks and the operations termination.
func WithShutdownTimeout(v time.Duration) Option {
	return func(c *config) {
		c.shutdownTimeout = v
	}
}

func New(opts ...Option) (*Process, error) {
	// Apply options
	c := config{shutdownTimeout: DefaultShutdownTimeout}
	for _, o := range opts {
		o(&c)
	}

	if c.logger == nil {
		c.logger = log.NewNopLogger()
	}

	// Generate uniqueID if not set
	if c.uniqueID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, err
		}
		c.uniqueID = fmt.Sprintf(`%s-%05d`, hostname, os.Getpid())
	}

	ctx, cancel := context.WithCancel(context.Background())
	proc := &Process{
		ctx:          ctx,
		cancel:       cancel,
		logger:       c.logger.WithComponent("process"),
		wg:           &sync.WaitGroup{},
		uniqueID:     c.uniqueID,
		timeout:      c.shutdownTimeout,
		shutdownOnce: &sync.Once{},
		done:         make(chan struct{}),
		lock:         &sync.Mutex{},
	}

	// Setup interrupt handler,
	// so SIGINT and SIGTERM signals cause the services to stop gracefully.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			proc.Shutdown(context.Background(), errors.Errorf("%s", sig))
		case <-proc.done:
		}
	}()

	proc.logger.With(attribute.String("process.id", proc.uniqueID)).Info(ctx, `process unique id "<process.id>"`)
	return proc, nil
}

func NewForTest(t *testing.T) *Process {
	t.Helper()

	proc, err := New(WithUniqueID("test_" + t.Name() + "_" + idgenerator.NodeIDSuffix()))
	if err != nil {
		t.Fatal(err)
		return nil
	}

	t.Cleanup(func() {
		proc.Shutdown(context.Background(), errors.New("test cleanup"))
		proc.WaitForShutdown()
	})

	return proc
}

// Ctx returns context of the Process, it is cancelled when the shutdown starts.
func (v *Process) Ctx() context.Context {
	return v.ctx
}

// UniqueID returns unique process ID, it consists of hostname and PID.
func (v *Process) UniqueID() string {
	return v.uniqueID
}

// Add an operation.
// The Process is graceful terminated when all operations are completed.
// The ctx parameter can be used to wait for the service termination.
// The shutdown parameter can be used to stop the service with an error.
func (v *Process) Add(operation func(ctx context.Context, shutdown ShutdownFn)) {
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		operation(v.ctx, v.Shutdown)
	}()
}

// OnShutdown registers a callback that is invoked when the process is terminating.
// Graceful shutdown waits until the callback has finished.
// Callback are invoked sequentially in LIFO order.
func (v *Process) OnShutdown(fn OnShutdownFn) {
	v.lock.Lock()
	defer v.lock.Unlock()
	if v.terminating {
		v.logger.Error(v.ctx, `cannot register OnShutdown callback: the process is terminating`)
		return
	}
	v.onShutdown = append(v.onShutdown, fn)
}

// Shutdown triggers termination of the Process, only the first call has an effect.
func (v *Process) Shutdown(ctx context.Context, err error) {
	v.shutdownOnce.Do(func() {
		go v.shutdown(context.WithoutCancel(ctx), err)
	})
}

// WaitForShutdown blocks until the shutdown is completed.
func (v *Process) WaitForShutdown() {
	<-v.done
}

func (v *Process) shutdown(ctx context.Context, reason error) {
	v.logger.Infof(ctx, "exiting (%v)", reason)

	v.lock.Lock()
	v.terminating = true
	callbacks := slices.Clone(v.onShutdown)
	v.lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	// Send cancellation signal to the operations
	v.cancel()

	// Iterate callbacks in reverse order, LIFO
	for i := len(callbacks) - 1; i >= 0; i-- {
		callbacks[i](ctx)
	}

	// Wait for all operations, the wait is bounded by the timeout
	opsDone := make(chan struct{})
	go func() {
		v.wg.Wait()
		close(opsDone)
	}()
	select {
	case <-opsDone:
		v.logger.Info(ctx, "exited")
	case <-ctx.Done():
		v.logger.Warnf(ctx, "exited, shutdown timeout %s exceeded", v.timeout)
	}

	close(v.done)
}
