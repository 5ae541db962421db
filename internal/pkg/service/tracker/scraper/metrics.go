package scraper

import (
	"go.opentelemetry.io/otel/metric"

	"github.com/keboola/price-tracker/internal/pkg/telemetry"
)

type metrics struct {
	runs       metric.Int64Counter
	duration   metric.Float64Histogram
	fetched    metric.Int64Counter
	persisted  metric.Int64Counter
	reconnects metric.Int64Counter
}

func newMetrics(meter metric.Meter) *metrics {
	return &metrics{
		runs:       telemetry.Counter(meter, "tracker.scraper.runs", "Scraper runs by outcome.", ""),
		duration:   telemetry.Histogram(meter, "tracker.scraper.run.duration", "Scraper run duration.", "ms"),
		fetched:    telemetry.Counter(meter, "tracker.scraper.fetched", "Fetched prices.", ""),
		persisted:  telemetry.Counter(meter, "tracker.scraper.persisted", "Persisted price records.", ""),
		reconnects: telemetry.Counter(meter, "tracker.scraper.reconnects", "Backend reconnections.", ""),
	}
}
