// Package scraper runs the ingestion job periodically, while the node holds the leadership.
//
// The schedule is fixed-delay: the next run starts Interval after the end of the previous run.
// Start and Stop never block, so they can be called from the leadership listener.
// An in-flight run is never interrupted by the Stop, and runs never overlap.
package scraper

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/metric"

	"github.com/keboola/price-tracker/internal/pkg/log"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/model"
	"github.com/keboola/price-tracker/internal/pkg/telemetry"
)

// Job fetches data from the upstream and persists them.
type Job interface {
	Fetch(ctx context.Context) (model.Prices, error)
	// Persist writes all prices in one transaction and returns the number of written records.
	Persist(ctx context.Context, prices model.Prices) (int, error)
}

// Backend is the persistence backend used by the Job.
type Backend interface {
	TestConnection(ctx context.Context) bool
	Reconnect(ctx context.Context) error
}

type Scheduler struct {
	config  Config
	clock   clockwork.Clock
	logger  log.Logger
	job     Job
	backend Backend
	metrics *metrics

	lock    sync.Mutex
	stats   Stats
	lastRun *JobRun
	// cancel stops the current worker
	cancel context.CancelFunc
	// done is closed when the current worker exits
	done chan struct{}
}

type Option func(c *options)

type options struct {
	clock clockwork.Clock
	meter metric.Meter
}

func WithClock(v clockwork.Clock) Option {
	return func(c *options) {
		c.clock = v
	}
}

func WithMeterProvider(v metric.MeterProvider) Option {
	return func(c *options) {
		c.meter = v.Meter("price-tracker.scraper")
	}
}

func New(cfg Config, job Job, backend Backend, logger log.Logger, opts ...Option) *Scheduler {
	o := options{
		clock: clockwork.NewRealClock(),
		meter: telemetry.NewNopMeterProvider().Meter(""),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.MaxFetchRetries < 1 {
		cfg.MaxFetchRetries = 1
	}

	return &Scheduler{
		config:  cfg,
		clock:   o.clock,
		logger:  logger.WithComponent("scraper"),
		job:     job,
		backend: backend,
		metrics: newMetrics(o.meter),
	}
}

// Start starts periodic runs, the first run starts immediately.
// If a run of a previous Start is still in flight, the first run waits for it.
// Start is idempotent and it never blocks.
func (s *Scheduler) Start() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.stats.Running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	prevDone := s.done
	done := make(chan struct{})
	s.stats.Running = true
	s.stats.StartedAt = s.clock.Now()
	s.cancel = cancel
	s.done = done

	s.logger.Info(ctx, "scraper started")
	go s.worker(ctx, prevDone, done)
}

// Stop cancels future runs, an in-flight run is completed.
// Stop is idempotent and it never blocks.
func (s *Scheduler) Stop() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.stats.Running {
		return
	}
	s.stats.Running = false
	s.cancel()
	s.logger.Info(context.Background(), "scraper stopped")
}

// Shutdown stops the scheduler and waits for the in-flight run, the wait is bounded by the ctx.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.Stop()

	s.lock.Lock()
	done := s.done
	s.lock.Unlock()
	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn(ctx, "scraper shutdown timeout, the in-flight run is abandoned")
		return ctx.Err()
	}
}

func (s *Scheduler) IsRunning() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.stats.Running
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.stats
}

// LastRun returns the last completed run.
func (s *Scheduler) LastRun() (JobRun, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.lastRun == nil {
		return JobRun{}, false
	}
	return *s.lastRun, true
}

func (s *Scheduler) worker(ctx context.Context, prevDone <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	// Runs never overlap, wait for the previous worker
	if prevDone != nil {
		<-prevDone
	}

	for {
		if !s.beginRun(ctx) {
			return
		}

		// The run is not cancelled by the Stop
		run := s.execute(context.WithoutCancel(ctx))
		failures := s.recordRun(run)
		if run.Outcome == OutcomeError && failures > ReconnectEvery && failures%ReconnectEvery == 0 {
			s.reconnect(context.WithoutCancel(ctx), failures)
		}

		timer := s.clock.NewTimer(s.config.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}
	}
}

// beginRun returns false if the worker has been stopped.
// The check is done under the lock, so no run starts after the Stop.
func (s *Scheduler) beginRun(ctx context.Context) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return ctx.Err() == nil
}

// recordRun updates the counters and returns the number of consecutive failures.
func (s *Scheduler) recordRun(run JobRun) int64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	if run.Outcome == OutcomeSuccess {
		s.stats.SuccessCount++
		s.stats.ConsecutiveFailures = 0
		s.stats.LastSuccessTime = run.StartedAt.Add(run.Duration)
	} else {
		s.stats.ErrorCount++
		s.stats.ConsecutiveFailures++
	}
	s.lastRun = &run
	return s.stats.ConsecutiveFailures
}

func (s *Scheduler) reconnect(ctx context.Context, failures int64) {
	ctx, cancel := context.WithTimeout(ctx, s.config.ReconnectTimeout)
	defer cancel()

	s.logger.Warnf(ctx, "%d consecutive failures, reconnecting backend", failures)
	s.metrics.reconnects.Add(ctx, 1)
	if err := s.backend.Reconnect(ctx); err != nil {
		s.logger.Errorf(ctx, "backend reconnection failed: %s", err)
	} else {
		s.logger.Info(ctx, "backend reconnected")
	}
}
