// Package dependencies provides the dependencies shared by the tracker components.
package dependencies

import (
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/metric"

	"github.com/keboola/price-tracker/internal/pkg/log"
	"github.com/keboola/price-tracker/internal/pkg/service/common/servicectx"
)

type ServiceScope interface {
	Clock() clockwork.Clock
	Logger() log.Logger
	Process() *servicectx.Process
	MeterProvider() metric.MeterProvider
}

type serviceScope struct {
	clock         clockwork.Clock
	logger        log.Logger
	process       *servicectx.Process
	meterProvider metric.MeterProvider
}

func NewServiceScope(proc *servicectx.Process, logger log.Logger, clock clockwork.Clock, meterProvider metric.MeterProvider) ServiceScope {
	return &serviceScope{
		clock:         clock,
		logger:        logger,
		process:       proc,
		meterProvider: meterProvider,
	}
}

func (v *serviceScope) Clock() clockwork.Clock {
	return v.clock
}

func (v *serviceScope) Logger() log.Logger {
	return v.logger
}

func (v *serviceScope) Process() *servicectx.Process {
	return v.process
}

func (v *serviceScope) MeterProvider() metric.MeterProvider {
	return v.meterProvider
}
