package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SyncTracerName is the instrumentation scope of sync run and connection spans.
const SyncTracerName = "github.com/printshop/backend/sync"

// Span attribute keys
const (
	AttrRunID      = attribute.Key("sync.run_id")
	AttrEntities   = attribute.Key("sync.entities")
	AttrRunStatus  = attribute.Key("sync.status")
	AttrOperation  = attribute.Key("icount.operation")
	AttrIdempotent = attribute.Key("icount.idempotent")
	AttrAttempts   = attribute.Key("icount.attempts")
)

// StartSpan starts an internal span on the global tracer provider.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(SyncTracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...))
}

// EndSpan marks span as failed when err is non-nil and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
