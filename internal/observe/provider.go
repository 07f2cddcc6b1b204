package observe

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// ProviderConfig identifies this Clyde instance in exported telemetry.
type ProviderConfig struct {
	// ServiceName is the service name stamped on the metrics resource.
	// Empty defaults to "clyde".
	ServiceName string

	// ServiceVersion is the build version, empty for development builds.
	ServiceVersion string

	// VehicleID labels this instance's metrics with the vehicle it runs in,
	// so a fleet dashboard can tell cabins apart. Optional.
	VehicleID string
}

// InitProvider wires the OpenTelemetry metrics SDK to a Prometheus reader
// and installs it as the global meter provider, so every instrument in
// [Metrics] ends up scrapeable from the ops server's /metrics endpoint.
//
// Clyde exports metrics only. The cabin has no trace collector to ship
// spans to, so no tracer provider is installed; trace calls made by
// instrumented dependencies fall through to the OTel no-op default.
//
// The returned shutdown flushes the meter provider; call it in a defer
// from main.
func InitProvider(ctx context.Context, cfg ProviderConfig) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "clyde"
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	if cfg.VehicleID != "" {
		attrs = append(attrs, attribute.String("vehicle.id", cfg.VehicleID))
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, attrs...),
	)
	if err != nil {
		return nil, err
	}

	reader, err := promexporter.New()
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	return mp.Shutdown, nil
}
