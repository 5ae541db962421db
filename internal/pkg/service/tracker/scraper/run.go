package scraper

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/keboola/price-tracker/internal/pkg/idgenerator"
	"github.com/keboola/price-tracker/internal/pkg/log"
	svcErrors "github.com/keboola/price-tracker/internal/pkg/service/common/errors"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/model"
	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

// execute runs the job once: connection check, fetch with retries and persist.
// Errors and panics are contained in the returned JobRun.
func (s *Scheduler) execute(ctx context.Context) (run JobRun) {
	run = JobRun{ID: idgenerator.JobRunID(), StartedAt: s.clock.Now()}
	logger := s.logger.With(attribute.String("run.id", run.ID))

	defer func() {
		if r := recover(); r != nil {
			run.Err = svcErrors.NewTransientError(errors.Errorf("panic: %v", r))
		}

		run.Duration = s.clock.Since(run.StartedAt)
		if run.Err == nil {
			run.Outcome = OutcomeSuccess
		} else {
			run.Outcome = OutcomeError
		}
		s.logRun(ctx, logger, run)
	}()

	// Check connection
	if err := s.checkConnection(ctx); err != nil {
		run.Err = err
		return run
	}

	// Fetch
	prices, attempts, err := s.fetch(ctx, logger)
	run.Attempts = attempts
	if err != nil {
		run.Err = err
		return run
	}
	s.metrics.fetched.Add(ctx, int64(len(prices)))

	// Persist
	written, err := s.persist(ctx, prices)
	run.Written = written
	if err != nil {
		run.Err = err
		return run
	}
	s.metrics.persisted.Add(ctx, int64(written))

	return run
}

func (s *Scheduler) checkConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ConnectionCheckTimeout)
	defer cancel()
	if !s.backend.TestConnection(ctx) {
		return svcErrors.NewConnectionError(errors.New("backend connection is not available"))
	}
	return nil
}

// fetch calls the Job.Fetch up to MaxFetchRetries times, with a constant delay between attempts.
// A permanent error or an empty result is not retried.
func (s *Scheduler) fetch(ctx context.Context, logger log.Logger) (prices model.Prices, attempts int, err error) {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.config.RetryBackoff), uint64(s.config.MaxFetchRetries-1)), // nolint: gosec
		ctx,
	)

	op := func() error {
		attempts++
		fetchCtx, cancel := context.WithTimeout(ctx, s.config.FetchTimeout)
		defer cancel()

		result, err := s.job.Fetch(fetchCtx)
		switch {
		case err != nil && svcErrors.IsPermanent(err):
			return backoff.Permanent(err)
		case err != nil && errors.Is(fetchCtx.Err(), context.DeadlineExceeded):
			return svcErrors.NewTransientError(errors.PrefixErrorf(err, "fetch timeout after %s", s.config.FetchTimeout))
		case err != nil:
			return err
		case len(result) == 0:
			return backoff.Permanent(svcErrors.NewPermanentError(errors.New("no prices fetched")))
		default:
			prices = result
			return nil
		}
	}

	notify := func(err error, delay time.Duration) {
		logger.Warnf(ctx, "fetch attempt %d/%d failed, retry in %s: %s", attempts, s.config.MaxFetchRetries, delay, err)
	}

	err = backoff.RetryNotifyWithTimer(op, b, notify, &clockTimer{clock: s.clock})
	if err != nil {
		return nil, attempts, errors.PrefixErrorf(err, "fetch failed after %d attempt(s)", attempts)
	}
	return prices, attempts, nil
}

func (s *Scheduler) persist(ctx context.Context, prices model.Prices) (int, error) {
	persistCtx, cancel := context.WithTimeout(ctx, s.config.PersistTimeout)
	defer cancel()

	written, err := s.job.Persist(persistCtx, prices)
	switch {
	case err != nil && errors.Is(persistCtx.Err(), context.DeadlineExceeded):
		return 0, svcErrors.NewTransientError(errors.PrefixErrorf(err, "persist timeout after %s", s.config.PersistTimeout))
	case err != nil:
		return 0, errors.PrefixError(err, "persist failed")
	default:
		return written, nil
	}
}

func (s *Scheduler) logRun(ctx context.Context, logger log.Logger, run JobRun) {
	s.metrics.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(run.Outcome))))
	s.metrics.duration.Record(ctx, float64(run.Duration)/float64(time.Millisecond), metric.WithAttributes(attribute.String("outcome", string(run.Outcome))))

	logger = logger.WithDuration(run.Duration).With(attribute.Int("run.written", run.Written), attribute.Int("run.attempts", run.Attempts))
	if run.Err != nil {
		logger.With(attribute.String("error.type", svcErrors.ErrorName(run.Err))).Errorf(ctx, "run failed: %s", run.Err)
	} else {
		logger.Info(ctx, `run succeeded, written "<run.written>" prices`)
	}
}
