// Package retention periodically deletes records older than the retention window.
// The sweeper runs on every node, independently of the leadership, the deletion is idempotent.
package retention

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/atomic"

	"github.com/keboola/price-tracker/internal/pkg/log"
	"github.com/keboola/price-tracker/internal/pkg/service/common/servicectx"
	"github.com/keboola/price-tracker/internal/pkg/telemetry"
	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

type dependencies interface {
	Clock() clockwork.Clock
	Logger() log.Logger
	Process() *servicectx.Process
	MeterProvider() metric.MeterProvider
}

// Backend deletes records older than the age and returns the number of deleted records.
type Backend interface {
	DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

type Sweeper struct {
	policy  Policy
	logger  log.Logger
	backend Backend
	deleted metric.Int64Counter
	sweeps  metric.Int64Counter
	total   *atomic.Int64
}

// Start starts the periodic sweep, the first sweep runs immediately.
// The sweeper is stopped on the process shutdown.
func Start(d dependencies, policy Policy, backend Backend) (*Sweeper, error) {
	if policy.Window <= 0 {
		return nil, errors.Errorf(`retention window must be positive, found "%s"`, policy.Window)
	}
	if policy.Interval <= 0 {
		return nil, errors.Errorf(`retention interval must be positive, found "%s"`, policy.Interval)
	}
	if policy.Timeout <= 0 {
		policy.Timeout = DefaultSweepTimeout
	}

	meter := d.MeterProvider().Meter("price-tracker.retention")
	s := &Sweeper{
		policy:  policy,
		logger:  d.Logger().WithComponent("retention"),
		backend: backend,
		deleted: telemetry.Counter(meter, "tracker.retention.deleted", "Deleted expired records.", ""),
		sweeps:  telemetry.Counter(meter, "tracker.retention.sweeps", "Retention sweeps by result.", ""),
		total:   atomic.NewInt64(0),
	}

	// Graceful shutdown
	ctx, cancel := context.WithCancelCause(context.Background())
	wg := &sync.WaitGroup{}
	d.Process().OnShutdown(func(ctx context.Context) {
		s.logger.Info(ctx, "received shutdown request")
		cancel(errors.New("shutting down: retention"))
		wg.Wait()
		s.logger.Info(ctx, "shutdown done")
	})

	s.logger.Infof(ctx, "retention sweeper started, window %s, interval %s", policy.Window, policy.Interval)

	// Start timer
	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := d.Clock().NewTicker(policy.Interval)
		defer ticker.Stop()

		for {
			s.sweep(ctx)

			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				continue
			}
		}
	}()

	return s, nil
}

// TotalDeleted returns the number of records deleted since the start.
func (s *Sweeper) TotalDeleted() int64 {
	return s.total.Load()
}

// sweep deletes the expired records, an error is logged and the next sweep is tried in the next interval.
func (s *Sweeper) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeoutCause(context.WithoutCancel(ctx), s.policy.Timeout, errors.New("retention sweep timeout"))
	defer cancel()

	count, err := s.backend.DeleteOlderThan(ctx, s.policy.Window)
	if err != nil {
		s.sweeps.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", false)))
		s.logger.Errorf(ctx, `retention sweep failed: %s`, err)
		return
	}

	s.total.Add(count)
	s.deleted.Add(ctx, count)
	s.sweeps.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", true)))
	s.logger.With(attribute.Int64("deletedRecordsCount", count)).Info(ctx, `deleted "<deletedRecordsCount>" records`)
}
