package designer

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName names the tracer and meter of the designer.
const instrumentationName = "github.com/cesmii/profiledesigner"

// otelMetrics holds the metric instruments of a Designer.
type otelMetrics struct {
	// importCounter counts import calls by outcome.
	importCounter metric.Int64Counter

	// durationHistogram records import duration in milliseconds.
	durationHistogram metric.Float64Histogram

	// warningCounter counts orphan warnings raised by projections.
	warningCounter metric.Int64Counter
}

func newOTelMetrics(meter metric.Meter) (*otelMetrics, error) {
	m := &otelMetrics{}
	var err error

	m.importCounter, err = meter.Int64Counter(
		"designer.import.count",
		metric.WithDescription("Number of nodeset imports"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create import counter: %w", err)
	}

	m.durationHistogram, err = meter.Float64Histogram(
		"designer.import.duration",
		metric.WithDescription("Nodeset import duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	m.warningCounter, err = meter.Int64Counter(
		"designer.import.warnings",
		metric.WithDescription("Number of non-fatal import warnings"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create warning counter: %w", err)
	}

	return m, nil
}

// recordImport records the metrics of one import.
func (m *otelMetrics) recordImport(ctx context.Context, tenant string, report *ImportReport, err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	opts := metric.WithAttributes(
		attribute.String("designer.tenant", tenant),
		attribute.String("designer.outcome", outcome),
	)

	m.importCounter.Add(ctx, 1, opts)
	m.durationHistogram.Record(ctx, float64(elapsed.Milliseconds()), opts)
	if report != nil && len(report.Warnings) > 0 {
		m.warningCounter.Add(ctx, int64(len(report.Warnings)), metric.WithAttributes(attribute.String("designer.tenant", tenant)))
	}
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
