// Package health periodically checks that the scraper produces fresh data.
//
// The Monitor only reports the state: it logs a warning, increments the alerts metric and calls
// the optional AlertHandler. It never takes a corrective action.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/atomic"

	"github.com/keboola/price-tracker/internal/pkg/log"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/scraper"
	"github.com/keboola/price-tracker/internal/pkg/telemetry"
)

type dependencies interface {
	Clock() clockwork.Clock
	Logger() log.Logger
	MeterProvider() metric.MeterProvider
}

// StatsProvider is implemented by the scraper.Scheduler.
type StatsProvider interface {
	Stats() scraper.Stats
}

// Alert describes a stale scraper.
type Alert struct {
	// StaleFor is the time since the last success, or since the start if there is no success.
	StaleFor        time.Duration
	ErrorCount      int64
	LastSuccessTime time.Time
}

type AlertHandler func(ctx context.Context, alert Alert)

// Stats is a snapshot of the scraper state.
type Stats struct {
	Running         bool      `json:"running"`
	SuccessCount    int64     `json:"successCount"`
	ErrorCount      int64     `json:"errorCount"`
	LastSuccessTime time.Time `json:"lastSuccessTime"`
	Healthy         bool      `json:"healthy"`
}

type Monitor struct {
	config   Config
	clock    clockwork.Clock
	logger   log.Logger
	provider StatsProvider
	handler  AlertHandler
	alerts   *atomic.Int64
	counter  metric.Int64Counter

	lock   sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(m *Monitor)

func WithAlertHandler(fn AlertHandler) Option {
	return func(m *Monitor) {
		m.handler = fn
	}
}

func New(d dependencies, cfg Config, provider StatsProvider, opts ...Option) *Monitor {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = cfg.StaleThreshold
	}

	meter := d.MeterProvider().Meter("price-tracker.health")
	m := &Monitor{
		config:   cfg,
		clock:    d.Clock(),
		logger:   d.Logger().WithComponent("health"),
		provider: provider,
		alerts:   atomic.NewInt64(0),
		counter:  telemetry.Counter(meter, "tracker.health.alerts", "Stale scraper alerts.", ""),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start starts the periodic check, it is idempotent.
func (m *Monitor) Start() {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	ticker := m.clock.NewTicker(m.config.CheckInterval)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				m.check(ctx)
			}
		}
	}()

	m.logger.Infof(ctx, "health monitor started, stale threshold %s", m.config.StaleThreshold)
}

// Stop stops the periodic check and waits for the running check.
func (m *Monitor) Stop() {
	m.lock.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.lock.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	m.wg.Wait()
	m.logger.Info(context.Background(), "health monitor stopped")
}

// IsHealthy returns true if the scraper is running and the last success is not older than the threshold.
func (m *Monitor) IsHealthy() bool {
	return m.isHealthy(m.provider.Stats())
}

func (m *Monitor) Stats() Stats {
	stats := m.provider.Stats()
	return Stats{
		Running:         stats.Running,
		SuccessCount:    stats.SuccessCount,
		ErrorCount:      stats.ErrorCount,
		LastSuccessTime: stats.LastSuccessTime,
		Healthy:         m.isHealthy(stats),
	}
}

// AlertsCount returns the number of raised alerts.
func (m *Monitor) AlertsCount() int64 {
	return m.alerts.Load()
}

func (m *Monitor) isHealthy(stats scraper.Stats) bool {
	if !stats.Running || stats.LastSuccessTime.IsZero() {
		return false
	}
	return m.clock.Since(stats.LastSuccessTime) <= m.config.StaleThreshold
}

func (m *Monitor) check(ctx context.Context) {
	stats := m.provider.Stats()
	m.logger.
		With(
			attribute.Bool("running", stats.Running),
			attribute.Int64("successCount", stats.SuccessCount),
			attribute.Int64("errorCount", stats.ErrorCount),
		).
		Info(ctx, `scraper stats: running "<running>", success "<successCount>", error "<errorCount>"`)

	if !stats.Running {
		return
	}

	since := stats.LastSuccessTime
	if since.IsZero() {
		since = stats.StartedAt
	}
	staleFor := m.clock.Since(since)
	if staleFor <= m.config.StaleThreshold {
		return
	}

	alert := Alert{StaleFor: staleFor, ErrorCount: stats.ErrorCount, LastSuccessTime: stats.LastSuccessTime}
	m.alerts.Inc()
	m.counter.Add(ctx, 1)
	m.logger.
		With(attribute.String("staleFor", staleFor.String()), attribute.Int64("errorCount", stats.ErrorCount)).
		Warn(ctx, `no successful run for "<staleFor>", failed runs "<errorCount>"`)
	if m.handler != nil {
		m.handler(ctx, alert)
	}
}
