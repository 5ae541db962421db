package retention_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/price-tracker/internal/pkg/service/tracker/dependencies"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/retention"
	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

type testBackend struct {
	lock  sync.Mutex
	ages  []time.Duration
	calls int
	// results are returned one by one, the last one is repeated
	results []result
}

type result struct {
	count int64
	err   error
}

func (b *testBackend) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("missing deadline")
	}

	b.lock.Lock()
	defer b.lock.Unlock()
	b.ages = append(b.ages, age)
	r := b.results[min(b.calls, len(b.results)-1)]
	b.calls++
	return r.count, r.err
}

func (b *testBackend) callsCount() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.calls
}

func TestSweeper(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clk := clockwork.NewFakeClock()
	d := dependencies.NewMockedServiceScope(t, dependencies.WithClock(clk))
	backend := &testBackend{results: []result{
		{count: 3},
		{err: errors.New("database is locked")},
		{count: 2},
	}}

	sweeper, err := retention.Start(d, retention.NewPolicy(), backend)
	require.NoError(t, err)

	// The first sweep is immediate
	assert.Eventually(t, func() bool {
		return backend.callsCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	// The error is logged, the sweeper continues
	require.NoError(t, clk.BlockUntilContext(ctx, 1))
	clk.Advance(time.Hour)
	assert.Eventually(t, func() bool {
		return backend.callsCount() == 2
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, clk.BlockUntilContext(ctx, 1))
	clk.Advance(time.Hour)
	assert.Eventually(t, func() bool {
		return sweeper.TotalDeleted() == 5
	}, 5*time.Second, 10*time.Millisecond)

	// Shutdown
	d.Process().Shutdown(ctx, errors.New("bye bye"))
	d.Process().WaitForShutdown()

	backend.lock.Lock()
	assert.Equal(t, []time.Duration{36 * time.Hour, 36 * time.Hour, 36 * time.Hour}, backend.ages)
	backend.lock.Unlock()

	tel := d.TestTelemetry()
	assert.Equal(t, int64(5), tel.Int64Sum(t, "tracker.retention.deleted"))
	assert.Equal(t, int64(2), tel.Int64Sum(t, "tracker.retention.sweeps", attribute.Bool("success", true)))
	assert.Equal(t, int64(1), tel.Int64Sum(t, "tracker.retention.sweeps", attribute.Bool("success", false)))

	d.DebugLogger().AssertJSONMessages(t, `
{"level":"info","message":"retention sweeper started, window 36h0m0s, interval 1h0m0s","component":"retention"}
{"level":"info","message":"deleted \"3\" records","component":"retention","deletedRecordsCount":3}
{"level":"error","message":"retention sweep failed: database is locked","component":"retention"}
{"level":"info","message":"deleted \"2\" records","component":"retention","deletedRecordsCount":2}
{"level":"info","message":"received shutdown request","component":"retention"}
{"level":"info","message":"shutdown done","component":"retention"}
`)
}

func TestSweeper_InvalidPolicy(t *testing.T) {
	t.Parallel()

	d := dependencies.NewMockedServiceScope(t)
	_, err := retention.Start(d, retention.Policy{Window: 0, Interval: time.Hour}, &testBackend{})
	if assert.Error(t, err) {
		assert.Equal(t, `retention window must be positive, found "0s"`, err.Error())
	}

	_, err = retention.Start(d, retention.Policy{Window: time.Hour}, &testBackend{})
	if assert.Error(t, err) {
		assert.Equal(t, `retention interval must be positive, found "0s"`, err.Error())
	}
}
