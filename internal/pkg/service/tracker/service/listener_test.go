package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/price-tracker/internal/pkg/log"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/model"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/scraper"
)

type staticJob struct{}

func (staticJob) Fetch(context.Context) (model.Prices, error) {
	return model.Prices{"BTC": 1}, nil
}

func (staticJob) Persist(_ context.Context, prices model.Prices) (int, error) {
	return len(prices), nil
}

type staticBackend struct{}

func (staticBackend) TestConnection(context.Context) bool {
	return true
}

func (staticBackend) Reconnect(context.Context) error {
	return nil
}

func TestLeadershipListener(t *testing.T) {
	t.Parallel()

	// Leadership events before the scheduler is created are ignored
	listener := &leadershipListener{}
	assert.NotPanics(t, func() {
		listener.OnBecomeLeader()
		listener.OnLoseLeadership()
	})

	scheduler := scraper.New(scraper.NewConfig(), staticJob{}, staticBackend{}, log.NewNopLogger())
	listener.scheduler.Store(scheduler)

	listener.OnBecomeLeader()
	assert.True(t, scheduler.IsRunning())
	listener.OnLoseLeadership()
	assert.False(t, scheduler.IsRunning())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, scheduler.Shutdown(ctx))
}
