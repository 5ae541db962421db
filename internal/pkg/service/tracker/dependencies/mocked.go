package dependencies

import (
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/keboola/price-tracker/internal/pkg/log"
	"github.com/keboola/price-tracker/internal/pkg/service/common/servicectx"
	"github.com/keboola/price-tracker/internal/pkg/telemetry"
)

// Mocked is a ServiceScope for tests, logs and metrics are collected in memory.
type Mocked interface {
	ServiceScope
	DebugLogger() log.DebugLogger
	TestTelemetry() *telemetry.ForTest
}

type mocked struct {
	ServiceScope
	debugLogger log.DebugLogger
	telemetry   *telemetry.ForTest
}

type MockedOption func(c *mockedConfig)

type mockedConfig struct {
	clock clockwork.Clock
}

func WithClock(v clockwork.Clock) MockedOption {
	return func(c *mockedConfig) {
		c.clock = v
	}
}

// NewMockedServiceScope creates dependencies for a test, the process is terminated by the test cleanup.
func NewMockedServiceScope(t *testing.T, opts ...MockedOption) Mocked {
	t.Helper()

	cfg := mockedConfig{clock: clockwork.NewRealClock()}
	for _, o := range opts {
		o(&cfg)
	}

	logger := log.NewDebugLogger()
	tel := telemetry.NewForTest(t)
	proc := servicectx.NewForTest(t)
	return &mocked{
		ServiceScope: NewServiceScope(proc, logger, cfg.clock, tel.MeterProvider()),
		debugLogger:  logger,
		telemetry:    tel,
	}
}

func (v *mocked) DebugLogger() log.DebugLogger {
	return v.debugLogger
}

func (v *mocked) TestTelemetry() *telemetry.ForTest {
	return v.telemetry
}
