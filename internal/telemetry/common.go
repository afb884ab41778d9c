package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	api "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// ExporterScraper serves metrics for a Prometheus scraper; anything else pushes over OTLP gRPC
const ExporterScraper = "scraper"

// Telemetry owns the meter provider of the process
type Telemetry struct {
	Provider *metric.MeterProvider
	meter    api.Meter
	scraper  bool
}

// InitMetrics installs a global meter provider using the given exporter
func InitMetrics(ctx context.Context, meterName, exporter string) (*Telemetry, error) {
	t := &Telemetry{}
	var err error
	if exporter == ExporterScraper {
		slog.Info("Starting metrics with scraper exporter")
		err = t.initScrapeMetrics()
	} else {
		slog.Info("Starting metrics with grpc exporter")
		err = t.initGRPCMetrics(ctx)
	}
	if err != nil {
		return nil, err
	}

	otel.SetMeterProvider(t.Provider)
	t.meter = t.Provider.Meter(meterName)
	return t, nil
}

// Meter returns the meter instruments should be created on
func (t *Telemetry) Meter() api.Meter {
	return t.meter
}

// Handler serves the Prometheus exposition, or 404 when pushing over gRPC
func (t *Telemetry) Handler() http.Handler {
	if !t.scraper {
		return http.NotFoundHandler()
	}
	return promhttp.Handler()
}

// Shutdown flushes and stops the provider
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.Provider == nil {
		return nil
	}
	if err := t.Provider.ForceFlush(ctx); err != nil {
		slog.Warn("Failed to flush metrics", "error", err)
	}
	return t.Provider.Shutdown(ctx)
}

// The endpoint comes from OTEL_EXPORTER_OTLP_METRICS_ENDPOINT, default localhost:4317
func (t *Telemetry) initGRPCMetrics(ctx context.Context) error {
	exporter, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		return fmt.Errorf("failed to create grpc metrics exporter: %w", err)
	}
	t.Provider = metric.NewMeterProvider(metric.WithReader(metric.NewPeriodicReader(exporter)))
	return nil
}

// The exporter is both a Reader and a prometheus.Collector registered on the default registry
func (t *Telemetry) initScrapeMetrics() error {
	exporter, err := prometheus.New()
	if err != nil {
		return fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	t.Provider = metric.NewMeterProvider(metric.WithReader(exporter))
	t.scraper = true
	return nil
}
