package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name of the tracer for simplot operations.
	TracerName = "simplot"
)

// Span attribute keys
const (
	AttrFile       = "file"
	AttrJobID      = "job_id"
	AttrWindow     = "window"
	AttrFileCount  = "file_count"
	AttrPoints     = "points"
	AttrRowErrors  = "row_errors"
	AttrRows       = "rows"
	AttrErrorCode  = "error_code"
	AttrDurationMs = "duration_ms"
)

// Span names
const (
	SpanProcessFile = "simplot.process_file"
	SpanBatch       = "simplot.batch"
	SpanWatchEvent  = "simplot.watch_event"
)

// Tracer starts spans for simplot operations.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(TracerName),
	}
}

// StartFileSpan starts a span for processing one file.
func (t *Tracer) StartFileSpan(ctx context.Context, path string, window int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanProcessFile,
		trace.WithAttributes(
			attribute.String(AttrFile, path),
			attribute.Int(AttrWindow, window),
		),
	)
}

// StartBatchSpan starts a root span for a batch run.
func (t *Tracer) StartBatchSpan(ctx context.Context, jobID string, fileCount int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanBatch,
		trace.WithAttributes(
			attribute.String(AttrJobID, jobID),
			attribute.Int(AttrFileCount, fileCount),
		),
	)
}

// StartWatchEventSpan starts a span for a file change picked up by a watcher.
func (t *Tracer) StartWatchEventSpan(ctx context.Context, path string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanWatchEvent,
		trace.WithAttributes(attribute.String(AttrFile, path)),
	)
}

// SpanHelper provides convenient methods for working with a span.
type SpanHelper struct {
	span trace.Span
}

// NewSpanHelper creates a new span helper for the given span.
func NewSpanHelper(span trace.Span) *SpanHelper {
	return &SpanHelper{span: span}
}

// SetResult records the outcome counts of a file.
func (h *SpanHelper) SetResult(rows, points, rowErrors int) {
	h.span.SetAttributes(
		attribute.Int(AttrRows, rows),
		attribute.Int(AttrPoints, points),
		attribute.Int(AttrRowErrors, rowErrors),
	)
}

// SetDuration sets the duration attribute.
func (h *SpanHelper) SetDuration(durationMs int64) {
	h.span.SetAttributes(attribute.Int64(AttrDurationMs, durationMs))
}

// SetError records an error on the span.
func (h *SpanHelper) SetError(err error, code string) {
	h.span.SetStatus(codes.Error, err.Error())
	h.span.SetAttributes(attribute.String(AttrErrorCode, code))
	h.span.RecordError(err)
}

// SetSuccess marks the span as successful.
func (h *SpanHelper) SetSuccess() {
	h.span.SetStatus(codes.Ok, "")
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
