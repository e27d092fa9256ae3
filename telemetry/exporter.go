package telemetry

import (
	"context"
	"encoding/hex"
	"log/slog"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SpanLogExporter writes finished spans to a slog logger at debug level,
// or at warn level when the span ended with an error.
type SpanLogExporter struct {
	logger *slog.Logger
}

// NewSpanLogExporter returns an exporter writing to logger.
func NewSpanLogExporter(logger *slog.Logger) *SpanLogExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SpanLogExporter{logger: logger}
}

// ExportSpans implements sdktrace.SpanExporter. It never fails.
func (e *SpanLogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		sc := span.SpanContext()
		traceID := sc.TraceID()
		spanID := sc.SpanID()

		attrs := []slog.Attr{
			slog.String("span", span.Name()),
			slog.String("trace_id", hex.EncodeToString(traceID[:])),
			slog.String("span_id", hex.EncodeToString(spanID[:])),
			slog.Duration("duration", span.EndTime().Sub(span.StartTime())),
		}
		if span.Parent().IsValid() {
			parentID := span.Parent().SpanID()
			attrs = append(attrs, slog.String("parent_span_id", hex.EncodeToString(parentID[:])))
		}
		for _, kv := range span.Attributes() {
			attrs = append(attrs, slog.String(string(kv.Key), kv.Value.Emit()))
		}

		level := slog.LevelDebug
		if span.Status().Code == codes.Error {
			level = slog.LevelWarn
			attrs = append(attrs, slog.String("error", span.Status().Description))
		}
		e.logger.LogAttrs(ctx, level, "span finished", attrs...)
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (e *SpanLogExporter) Shutdown(context.Context) error {
	return nil
}
