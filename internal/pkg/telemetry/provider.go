package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

const MetricsPath = "/metrics"

// PrometheusProvider is an OpenTelemetry meter provider, metrics are exposed by the Handler in the Prometheus format.
type PrometheusProvider struct {
	*sdkmetric.MeterProvider
	registry *prometheus.Registry
}

func NewPrometheusProvider() (*PrometheusProvider, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, errors.PrefixError(err, "cannot create prometheus exporter")
	}

	return &PrometheusProvider{
		MeterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)),
		registry:      registry,
	}, nil
}

func (p *PrometheusProvider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func NewNopMeterProvider() metric.MeterProvider {
	return noop.NewMeterProvider()
}
