package health_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/price-tracker/internal/pkg/service/tracker/dependencies"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/health"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/scraper"
)

type testProvider struct {
	lock  sync.Mutex
	stats scraper.Stats
}

func (p *testProvider) Stats() scraper.Stats {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.stats
}

func (p *testProvider) update(fn func(s *scraper.Stats)) {
	p.lock.Lock()
	defer p.lock.Unlock()
	fn(&p.stats)
}

func TestMonitor_IsHealthy(t *testing.T) {
	t.Parallel()

	clk := clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	d := dependencies.NewMockedServiceScope(t, dependencies.WithClock(clk))
	provider := &testProvider{}
	monitor := health.New(d, health.NewConfig(), provider)

	// Not running
	assert.False(t, monitor.IsHealthy())

	// Running, no success
	provider.update(func(s *scraper.Stats) {
		s.Running = true
		s.StartedAt = clk.Now()
	})
	assert.False(t, monitor.IsHealthy())

	// Success
	provider.update(func(s *scraper.Stats) {
		s.SuccessCount = 1
		s.LastSuccessTime = clk.Now()
	})
	assert.True(t, monitor.IsHealthy())

	clk.Advance(4 * time.Minute)
	assert.True(t, monitor.IsHealthy())

	clk.Advance(time.Minute)
	assert.True(t, monitor.IsHealthy(), "the threshold itself is healthy")

	clk.Advance(time.Minute)
	assert.False(t, monitor.IsHealthy())
	assert.Equal(t, health.Stats{
		Running:         true,
		SuccessCount:    1,
		LastSuccessTime: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Healthy:         false,
	}, monitor.Stats())

	// Stopped scraper is not healthy, even with a fresh success
	provider.update(func(s *scraper.Stats) {
		s.Running = false
		s.LastSuccessTime = clk.Now()
	})
	assert.False(t, monitor.IsHealthy())
}

func TestMonitor_Alert(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clk := clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	d := dependencies.NewMockedServiceScope(t, dependencies.WithClock(clk))
	provider := &testProvider{}
	provider.update(func(s *scraper.Stats) {
		s.Running = true
		s.StartedAt = clk.Now()
		s.ErrorCount = 3
	})

	var alertsLock sync.Mutex
	var alerts []health.Alert
	cfg := health.Config{StaleThreshold: 5 * time.Minute, CheckInterval: time.Minute}
	monitor := health.New(d, cfg, provider, health.WithAlertHandler(func(_ context.Context, alert health.Alert) {
		alertsLock.Lock()
		defer alertsLock.Unlock()
		alerts = append(alerts, alert)
	}))
	monitor.Start()
	defer monitor.Stop()

	// Advance one check interval and wait for the check
	checks := 0
	tick := func() {
		checks++
		clk.Advance(cfg.CheckInterval)
		assert.Eventually(t, func() bool {
			return strings.Count(d.DebugLogger().AllMessages(), "scraper stats") == checks
		}, 5*time.Second, 10*time.Millisecond)
	}

	// Fresh start, no alert up to the threshold
	require.NoError(t, clk.BlockUntilContext(ctx, 1))
	for range 5 {
		tick()
	}
	assert.Equal(t, int64(0), monitor.AlertsCount())

	// No success since the start
	tick()
	assert.Eventually(t, func() bool {
		alertsLock.Lock()
		defer alertsLock.Unlock()
		return len(alerts) == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(1), monitor.AlertsCount())
	alertsLock.Lock()
	require.Len(t, alerts, 1)
	assert.Equal(t, 6*time.Minute, alerts[0].StaleFor)
	assert.Equal(t, int64(3), alerts[0].ErrorCount)
	assert.True(t, alerts[0].LastSuccessTime.IsZero())
	alertsLock.Unlock()

	assert.Equal(t, int64(1), d.TestTelemetry().Int64Sum(t, "tracker.health.alerts"))
	d.DebugLogger().AssertJSONMessages(t, `
{"level":"info","message":"health monitor started, stale threshold 5m0s","component":"health"}
{"level":"info","message":"scraper stats: running \"true\", success \"0\", error \"3\"","component":"health"}
{"level":"warn","message":"no successful run for \"6m0s\", failed runs \"3\"","component":"health","staleFor":"6m0s","errorCount":3}
`)

	// Fresh success, no alert
	provider.update(func(s *scraper.Stats) {
		s.SuccessCount = 1
		s.LastSuccessTime = clk.Now()
	})
	d.DebugLogger().Truncate()
	clk.Advance(time.Minute)
	assert.Eventually(t, func() bool {
		return strings.Contains(d.DebugLogger().AllMessages(), "scraper stats")
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), monitor.AlertsCount())
	assert.Empty(t, d.DebugLogger().WarnAndErrorMessages())
}

func TestMonitor_NotRunning_NoAlert(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clk := clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	d := dependencies.NewMockedServiceScope(t, dependencies.WithClock(clk))
	monitor := health.New(d, health.Config{StaleThreshold: time.Minute}, &testProvider{})
	monitor.Start()
	monitor.Start()

	require.NoError(t, clk.BlockUntilContext(ctx, 1))
	clk.Advance(10 * time.Minute)
	assert.Eventually(t, func() bool {
		return strings.Contains(d.DebugLogger().AllMessages(), "scraper stats")
	}, 5*time.Second, 10*time.Millisecond)

	monitor.Stop()
	monitor.Stop()
	assert.Equal(t, int64(0), monitor.AlertsCount())
	d.DebugLogger().AssertJSONMessages(t, `
{"level":"info","message":"health monitor stopped"}
`)
}
