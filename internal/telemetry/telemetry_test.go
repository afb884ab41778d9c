package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestTelemetry(t *testing.T) (*StorefrontTelemetry, *metric.ManualReader) {
	t.Helper()
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	tel, err := NewStorefrontTelemetry(provider.Meter("test"))
	require.NoError(t, err)
	return tel, reader
}

// counterValues sums a counter's data points keyed by the value of attribute key
func counterValues(t *testing.T, reader *metric.ManualReader, name, key string) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				value, _ := dp.Attributes.Value(attribute.Key(key))
				out[value.Emit()] += dp.Value
			}
		}
	}
	return out
}

func TestTelemetryMiddleware_RecordsRouteTemplates(t *testing.T) {
	// Arrange
	tel, reader := newTestTelemetry(t)
	router := mux.NewRouter()
	router.Use(NewTelemetryMiddleware(tel).Middleware)
	router.HandleFunc("/v1/products/{productId}", func(w http.ResponseWriter, r *http.Request) {
		if mux.Vars(r)["productId"] == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{}`))
	}).Methods(http.MethodGet)

	// Act
	for _, path := range []string{"/v1/products/1", "/v1/products/2", "/v1/products/missing"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	// Assert
	requests := counterValues(t, reader, "storefront_api_requests_total", "endpoint")
	assert.Equal(t, map[string]int64{"/v1/products/{productId}": 2}, requests)
	errorsByType := counterValues(t, reader, "storefront_api_errors_total", "error_type")
	assert.Equal(t, map[string]int64{"not_found": 1}, errorsByType)
}

func TestStorefrontTelemetry_DomainCounters(t *testing.T) {
	tel, reader := newTestTelemetry(t)
	ctx := context.Background()

	tel.RecordOrder(ctx, "submitted")
	tel.RecordOrder(ctx, "failed")
	tel.RecordOrder(ctx, "submitted")
	tel.RecordWriteFailure(ctx, "add cart line")
	tel.RecordSessionStarted(ctx, "local")

	assert.Equal(t, map[string]int64{"submitted": 2, "failed": 1}, counterValues(t, reader, "storefront_orders_total", "outcome"))
	assert.Equal(t, map[string]int64{"add cart line": 1}, counterValues(t, reader, "storefront_remote_write_failures_total", "operation"))
	assert.Equal(t, map[string]int64{"local": 1}, counterValues(t, reader, "storefront_sessions_started_total", "mode"))
}

func TestNormalizeClientIP(t *testing.T) {
	testCases := map[string]string{
		"":                "unknown",
		"garbage":         "invalid",
		"127.0.0.1:5555":  "localhost",
		"10.1.2.3":        "internal",
		"192.168.1.10:80": "internal",
		"8.8.8.8":         "external",
	}
	for input, expected := range testCases {
		assert.Equal(t, expected, NormalizeClientIP(input), input)
	}
}

func TestCategorizeError(t *testing.T) {
	assert.Equal(t, "not_found", categorizeError("Not Found"))
	assert.Equal(t, "backend_unavailable", categorizeError("Service Unavailable"))
	assert.Equal(t, "unknown", categorizeError(""))
	assert.Equal(t, "other", categorizeError("I'm a teapot"))
}
