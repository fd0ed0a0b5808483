// Package telemetry wires OpenTelemetry metrics to a Prometheus scrape
// endpoint and records model lifecycle and inference measurements.
package telemetry

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Provider bundles the meter provider with its scrape handler.
type Provider struct {
	MeterProvider metric.MeterProvider
	// Handler serves the Prometheus exposition format; nil when disabled.
	Handler  http.Handler
	shutdown func(context.Context) error
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

// Setup creates the meter provider. When disabled, a no-op provider is
// returned so instrumented code never has to check.
func Setup(serviceName string, enabled bool, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !enabled {
		return &Provider{MeterProvider: noop.NewMeterProvider()}, nil
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	exporter, err := prometheus.New()
	if err != nil {
		logger.Warn("failed to initialize prometheus exporter", slog.String("error", err.Error()))
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
		return &Provider{MeterProvider: mp, shutdown: mp.Shutdown}, nil
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	logger.Info("telemetry initialized", slog.String("exporter", "prometheus"))

	return &Provider{
		MeterProvider: mp,
		Handler:       promhttp.Handler(),
		shutdown:      mp.Shutdown,
	}, nil
}
