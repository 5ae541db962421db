// Package ingest provides the bundled scraper.Job, it fetches USD prices from the CoinGecko "simple price" API.
package ingest

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jonboulle/clockwork"
	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/price-tracker/internal/pkg/log"
	svcErrors "github.com/keboola/price-tracker/internal/pkg/service/common/errors"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/model"
	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

const (
	DefaultBaseURL = "https://api.coingecko.com/api/v3"
	DefaultTimeout = 30 * time.Second
	pricePath      = "/simple/price"
	currency       = "usd"
)

// nolint: gochecknoglobals
var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Config struct {
	BaseURL string
	Timeout time.Duration
	Coins   []model.Coin
}

func NewConfig() Config {
	return Config{BaseURL: DefaultBaseURL, Timeout: DefaultTimeout, Coins: model.DefaultCoins()}
}

// PriceStore is implemented by the storage.Store.
type PriceStore interface {
	InsertPrices(ctx context.Context, prices model.Prices, at time.Time) (int, error)
}

type CoinGecko struct {
	config Config
	clock  clockwork.Clock
	logger log.Logger
	store  PriceStore
	http   *resty.Client
}

// priceResponse maps the coin ID to the price in the currencies, for example {"bitcoin":{"usd":95000.5}}.
type priceResponse map[string]map[string]float64

func NewCoinGecko(cfg Config, clock clockwork.Clock, store PriceStore, logger log.Logger) *CoinGecko {
	return &CoinGecko{
		config: cfg,
		clock:  clock,
		logger: logger.WithComponent("ingest.coingecko"),
		store:  store,
		http:   newHTTPClient(cfg),
	}
}

// Fetch loads the current USD prices of all tracked coins.
// Network errors, HTTP 429 and 5xx are transient, other failures are permanent.
func (c *CoinGecko) Fetch(ctx context.Context) (model.Prices, error) {
	ids := make([]string, 0, len(c.config.Coins))
	for _, coin := range c.config.Coins {
		ids = append(ids, coin.GeckoID)
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("ids", strings.Join(ids, ",")).
		SetQueryParam("vs_currencies", currency).
		Get(pricePath)
	if err != nil {
		return nil, svcErrors.NewTransientError(errors.PrefixError(err, "coingecko request failed"))
	}

	switch code := res.StatusCode(); {
	case code == http.StatusOK:
		// continue
	case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
		return nil, svcErrors.NewTransientError(errors.Errorf(`coingecko returned HTTP %d`, code))
	default:
		return nil, svcErrors.NewPermanentError(errors.Errorf(`coingecko returned HTTP %d`, code))
	}

	var body priceResponse
	if err := json.Unmarshal(res.Body(), &body); err != nil {
		return nil, svcErrors.NewPermanentError(errors.PrefixError(err, "invalid coingecko response"))
	}

	prices := make(model.Prices, len(c.config.Coins))
	for _, coin := range c.config.Coins {
		price, found := body[coin.GeckoID][currency]
		if !found {
			c.logger.With(attribute.String("coin", coin.GeckoID)).Debug(ctx, `price of "<coin>" not found, skipped`)
			continue
		}
		prices[coin.Symbol] = price
	}

	c.logger.WithDuration(res.Time()).Debugf(ctx, "fetched %d prices", len(prices))
	return prices, nil
}

// Persist writes the prices with the current time, in one transaction.
func (c *CoinGecko) Persist(ctx context.Context, prices model.Prices) (int, error) {
	return c.store.InsertPrices(ctx, prices, c.clock.Now())
}
