package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// StorefrontTelemetry provides telemetry for the storefront API and its write path
type StorefrontTelemetry struct {
	requestCounter    metric.Int64Counter
	errorCounter      metric.Int64Counter
	durationHistogram metric.Float64Histogram

	writeFailureCounter metric.Int64Counter
	orderCounter        metric.Int64Counter
	sessionCounter      metric.Int64Counter
	catalogQueryCounter metric.Int64Counter
}

// RequestMetrics contains the telemetry data for a request
type RequestMetrics struct {
	Method       string
	Endpoint     string
	StatusCode   int
	Duration     time.Duration
	ErrorMessage string
	ClientIPType string
}

// NewStorefrontTelemetry creates all instruments on meter
func NewStorefrontTelemetry(meter metric.Meter) (*StorefrontTelemetry, error) {
	slog.Info("Initializing storefront telemetry")

	t := &StorefrontTelemetry{}
	var err error

	if t.requestCounter, err = meter.Int64Counter(
		"storefront_api_requests_total",
		metric.WithDescription("Total number of successful storefront API requests"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	if t.errorCounter, err = meter.Int64Counter(
		"storefront_api_errors_total",
		metric.WithDescription("Total number of storefront API errors"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	if t.durationHistogram, err = meter.Float64Histogram(
		"storefront_api_request_duration_seconds",
		metric.WithDescription("Duration of storefront API requests"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	if t.writeFailureCounter, err = meter.Int64Counter(
		"storefront_remote_write_failures_total",
		metric.WithDescription("Cart and favorites writes that failed and were dropped"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create write failure counter: %w", err)
	}

	if t.orderCounter, err = meter.Int64Counter(
		"storefront_orders_total",
		metric.WithDescription("Checkout attempts by outcome"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create order counter: %w", err)
	}

	if t.sessionCounter, err = meter.Int64Counter(
		"storefront_sessions_started_total",
		metric.WithDescription("Sessions started by cart mode"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create session counter: %w", err)
	}

	if t.catalogQueryCounter, err = meter.Int64Counter(
		"storefront_catalog_queries_total",
		metric.WithDescription("Catalog pages rendered"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create catalog query counter: %w", err)
	}

	slog.Info("Storefront telemetry initialized successfully")
	return t, nil
}

// RegisterRequestReceived records a successful API request
func (t *StorefrontTelemetry) RegisterRequestReceived(ctx context.Context, m RequestMetrics) {
	t.requestCounter.Add(ctx, 1, metric.WithAttributes(requestAttributes(m)...))
}

// RegisterRequestError records a failed API request
func (t *StorefrontTelemetry) RegisterRequestError(ctx context.Context, m RequestMetrics) {
	attrs := append(requestAttributes(m), attribute.String("error_type", categorizeError(m.ErrorMessage)))
	t.errorCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	slog.Debug("Recorded API request error",
		"method", m.Method,
		"endpoint", m.Endpoint,
		"status_code", m.StatusCode,
		"error", m.ErrorMessage)
}

// RegisterRequestDuration records the duration of an API request
func (t *StorefrontTelemetry) RegisterRequestDuration(ctx context.Context, m RequestMetrics) {
	t.durationHistogram.Record(ctx, m.Duration.Seconds(), metric.WithAttributes(requestAttributes(m)...))
}

// RecordWriteFailure counts a dropped cart or favorites write
func (t *StorefrontTelemetry) RecordWriteFailure(ctx context.Context, op string) {
	t.writeFailureCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
}

// RecordOrder counts a checkout attempt
func (t *StorefrontTelemetry) RecordOrder(ctx context.Context, outcome string) {
	t.orderCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordSessionStarted counts a new session
func (t *StorefrontTelemetry) RecordSessionStarted(ctx context.Context, mode string) {
	t.sessionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordCatalogQuery counts a rendered catalog page
func (t *StorefrontTelemetry) RecordCatalogQuery(ctx context.Context, sort string, filtered bool) {
	t.catalogQueryCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sort", sort),
		attribute.Bool("filtered", filtered),
	))
}

// Low-cardinality attributes only; no ids or raw addresses
func requestAttributes(m RequestMetrics) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("method", m.Method),
		attribute.String("endpoint", m.Endpoint),
		attribute.Int("status_code", m.StatusCode),
	}
	if m.ClientIPType != "" {
		attrs = append(attrs, attribute.String("client_ip_type", m.ClientIPType))
	}
	return attrs
}

// categorizeError groups similar errors to prevent high cardinality
func categorizeError(errorMessage string) string {
	msg := strings.ToLower(errorMessage)
	switch {
	case msg == "":
		return "unknown"
	case strings.Contains(msg, "not found"):
		return "not_found"
	case strings.Contains(msg, "unauthorized"):
		return "unauthorized"
	case strings.Contains(msg, "unavailable"), strings.Contains(msg, "bad gateway"):
		return "backend_unavailable"
	case strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "internal"):
		return "internal_error"
	case strings.Contains(msg, "bad request"), strings.Contains(msg, "unprocessable"):
		return "bad_request"
	case strings.Contains(msg, "conflict"):
		return "conflict"
	default:
		return "other"
	}
}

var privateNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(err)
		}
		out = append(out, network)
	}
	return out
}

// NormalizeClientIP categorizes client IPs to control cardinality
func NormalizeClientIP(clientIP string) string {
	if clientIP == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(clientIP); err == nil {
		clientIP = host
	}

	ip := net.ParseIP(clientIP)
	if ip == nil {
		return "invalid"
	}
	if ip.IsLoopback() {
		return "localhost"
	}
	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return "internal"
		}
	}
	return "external"
}
