package ingest

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/jonboulle/clockwork"
	"github.com/keboola/go-utils/pkg/wildcards"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/price-tracker/internal/pkg/log"
	svcErrors "github.com/keboola/price-tracker/internal/pkg/service/common/errors"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/model"
	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

const testURL = "https://coingecko.test/api/v3/simple/price"

type testStore struct {
	prices model.Prices
	at     time.Time
}

func (s *testStore) InsertPrices(_ context.Context, prices model.Prices, at time.Time) (int, error) {
	s.prices = prices
	s.at = at
	return len(prices), nil
}

func newForTest(t *testing.T, logger log.Logger) (*CoinGecko, *httpmock.MockTransport, *testStore) {
	t.Helper()
	cfg := NewConfig()
	cfg.BaseURL = "https://coingecko.test/api/v3"
	cfg.Coins = []model.Coin{{GeckoID: "bitcoin", Symbol: "BTC"}, {GeckoID: "ethereum", Symbol: "ETH"}, {GeckoID: "tron", Symbol: "TRX"}}
	store := &testStore{}
	c := NewCoinGecko(cfg, clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)), store, logger)
	transport := httpmock.NewMockTransport()
	c.http.SetTransport(transport)
	return c, transport, store
}

func TestCoinGecko_Fetch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	logger := log.NewDebugLogger()
	c, transport, store := newForTest(t, logger)
	transport.RegisterResponder(http.MethodGet, testURL, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "bitcoin,ethereum,tron", req.URL.Query().Get("ids"))
		assert.Equal(t, "usd", req.URL.Query().Get("vs_currencies"))
		assert.Equal(t, "price-tracker", req.Header.Get("User-Agent"))
		return httpmock.NewStringResponse(http.StatusOK, `{"bitcoin":{"usd":95000.5},"ethereum":{"usd":3300}}`), nil
	})

	prices, err := c.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Prices{"BTC": 95000.5, "ETH": 3300}, prices)

	written, err := c.Persist(ctx, prices)
	require.NoError(t, err)
	assert.Equal(t, 2, written)
	assert.Equal(t, prices, store.prices)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), store.at)

	logger.AssertJSONMessages(t, `
{"level":"debug","message":"price of \"tron\" not found, skipped","component":"ingest.coingecko"}
{"level":"debug","message":"fetched 2 prices","component":"ingest.coingecko"}
`)
}

func TestCoinGecko_Fetch_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		responder httpmock.Responder
		transient bool
		message   string
	}{
		{
			name:      "too many requests",
			responder: httpmock.NewStringResponder(http.StatusTooManyRequests, `{}`),
			transient: true,
			message:   "coingecko returned HTTP 429",
		},
		{
			name:      "server error",
			responder: httpmock.NewStringResponder(http.StatusBadGateway, `bad gateway`),
			transient: true,
			message:   "coingecko returned HTTP 502",
		},
		{
			name:      "not found",
			responder: httpmock.NewStringResponder(http.StatusNotFound, `{}`),
			transient: false,
			message:   "coingecko returned HTTP 404",
		},
		{
			name:      "invalid json",
			responder: httpmock.NewStringResponder(http.StatusOK, `{"bitcoin":`),
			transient: false,
			message:   "invalid coingecko response: %A",
		},
		{
			name:      "network error",
			responder: httpmock.NewErrorResponder(errors.New("connection reset by peer")),
			transient: true,
			message:   "coingecko request failed: %Aconnection reset by peer",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c, transport, _ := newForTest(t, log.NewNopLogger())
			transport.RegisterResponder(http.MethodGet, testURL, tc.responder)

			prices, err := c.Fetch(context.Background())
			assert.Nil(t, prices)
			require.Error(t, err)
			assert.Equal(t, tc.transient, svcErrors.IsTransient(err))
			assert.Equal(t, !tc.transient, svcErrors.IsPermanent(err))
			wildcards.Assert(t, tc.message, err.Error())
		})
	}
}
