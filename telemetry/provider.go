// Package telemetry builds the OpenTelemetry tracer provider of the
// profiledesigner command. Spans are written to the process logger; the
// pipeline itself only depends on the trace and metric APIs and defaults
// to no-op providers.
package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// InstrumentationName names the tracer and meter of the pipeline.
const InstrumentationName = "github.com/cesmii/profiledesigner"

// NewTracerProvider returns a provider that exports every span to logger
// as soon as it ends.
func NewTracerProvider(serviceName, version string, logger *slog.Logger) *sdktrace.TracerProvider {
	if logger == nil {
		logger = slog.Default()
	}
	processor := sdktrace.NewSimpleSpanProcessor(NewSpanLogExporter(logger))

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		logger.Warn("failed to create resource, using default", "error", err)
		res = resource.Default()
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(processor),
		sdktrace.WithResource(res),
	)
}
