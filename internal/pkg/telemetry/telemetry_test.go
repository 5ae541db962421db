package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func TestPrometheusProvider(t *testing.T) {
	t.Parallel()

	provider, err := NewPrometheusProvider()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})

	counter := Counter(provider.Meter("test"), "tracker.test.runs", "Test runs.", "")
	counter.Add(context.Background(), 3, metric.WithAttributes(attribute.String("outcome", "success")))

	rec := httptest.NewRecorder()
	provider.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, MetricsPath, nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(body), `tracker_test_runs_total{`)
	assert.Contains(t, string(body), `outcome="success"`)
	assert.Contains(t, string(body), `go_goroutines`)
}

func TestForTest(t *testing.T) {
	t.Parallel()

	tel := NewForTest(t)
	meter := tel.MeterProvider().Meter("test")
	ctx := context.Background()

	counter := Counter(meter, "runs", "", "")
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "success")))
	counter.Add(ctx, 2, metric.WithAttributes(attribute.String("outcome", "error")))
	hist := Histogram(meter, "duration", "", "ms")
	hist.Record(ctx, 10)
	hist.Record(ctx, 20)

	assert.Equal(t, int64(3), tel.Int64Sum(t, "runs"))
	assert.Equal(t, int64(2), tel.Int64Sum(t, "runs", attribute.String("outcome", "error")))
	assert.Equal(t, uint64(2), tel.HistogramCount(t, "duration"))
	assert.Equal(t, uint64(0), tel.HistogramCount(t, "missing"))
}

func TestNopMeterProvider(t *testing.T) {
	t.Parallel()

	counter := Counter(NewNopMeterProvider().Meter("test"), "runs", "", "")
	assert.NotPanics(t, func() {
		counter.Add(context.Background(), 1)
	})
}
