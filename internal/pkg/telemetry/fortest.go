package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// ForTest collects metrics in memory, values are read by the Int64Sum and HistogramCount methods.
type ForTest struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
}

func NewForTest(t *testing.T) *ForTest {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})
	return &ForTest{reader: reader, provider: provider}
}

func (v *ForTest) MeterProvider() metric.MeterProvider {
	return v.provider
}

// Int64Sum returns sum of all data points of the counter, which contain all the attributes.
func (v *ForTest) Int64Sum(t *testing.T, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	var total int64
	for _, m := range v.collect(t) {
		if m.Name != name {
			continue
		}
		if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
			for _, dp := range sum.DataPoints {
				if hasAttributes(dp.Attributes, attrs) {
					total += dp.Value
				}
			}
		}
	}
	return total
}

// HistogramCount returns the number of recorded values of the histogram, which contain all the attributes.
func (v *ForTest) HistogramCount(t *testing.T, name string, attrs ...attribute.KeyValue) uint64 {
	t.Helper()
	var total uint64
	for _, m := range v.collect(t) {
		if m.Name != name {
			continue
		}
		if hist, ok := m.Data.(metricdata.Histogram[float64]); ok {
			for _, dp := range hist.DataPoints {
				if hasAttributes(dp.Attributes, attrs) {
					total += dp.Count
				}
			}
		}
	}
	return total
}

func (v *ForTest) collect(t *testing.T) []metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, v.reader.Collect(context.Background(), &rm))
	var out []metricdata.Metrics
	for _, sm := range rm.ScopeMetrics {
		out = append(out, sm.Metrics...)
	}
	return out
}

func hasAttributes(set attribute.Set, attrs []attribute.KeyValue) bool {
	for _, kv := range attrs {
		actual, found := set.Value(kv.Key)
		if !found || actual.Emit() != kv.Value.Emit() {
			return false
		}
	}
	return true
}
