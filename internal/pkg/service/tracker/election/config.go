package election

import (
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/keboola/price-tracker/internal/pkg/telemetry"
)

const (
	DefaultPath           = "/price-tracker/election"
	DefaultNodePrefix     = "node-"
	DefaultConnectTimeout = 15 * time.Second
	DefaultOpTimeout      = 10 * time.Second
)

type config struct {
	path           string
	nodePrefix     string
	connectTimeout time.Duration
	opTimeout      time.Duration
	meter          metric.Meter
}

type Option func(c *config)

// WithPath sets the parent path of the membership nodes.
func WithPath(v string) Option {
	return func(c *config) {
		c.path = v
	}
}

func WithNodePrefix(v string) Option {
	return func(c *config) {
		c.nodePrefix = v
	}
}

// WithConnectTimeout limits the session establishment in the Connect function.
func WithConnectTimeout(v time.Duration) Option {
	return func(c *config) {
		c.connectTimeout = v
	}
}

// WithOpTimeout limits each coordination operation started by a watch or a session event.
func WithOpTimeout(v time.Duration) Option {
	return func(c *config) {
		c.opTimeout = v
	}
}

// WithMeterProvider enables leadership metrics.
func WithMeterProvider(v metric.MeterProvider) Option {
	return func(c *config) {
		c.meter = v.Meter("price-tracker.election")
	}
}

func newConfig(opts []Option) config {
	cfg := config{
		path:           DefaultPath,
		nodePrefix:     DefaultNodePrefix,
		connectTimeout: DefaultConnectTimeout,
		opTimeout:      DefaultOpTimeout,
		meter:          telemetry.NewNopMeterProvider().Meter(""),
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}
