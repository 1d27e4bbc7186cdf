package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys shared by the webhook and sync paths
const (
	AttrOrderID       = attribute.Key("order.id")
	AttrPaymentID     = attribute.Key("payment.id")
	AttrPaymentStatus = attribute.Key("payment.status")
	AttrOutcome       = attribute.Key("outcome")
	AttrSyncItemID    = attribute.Key("sync.item_id")
	AttrSyncModule    = attribute.Key("sync.module")
	AttrSyncOperation = attribute.Key("sync.operation")
	AttrBatchSize     = attribute.Key("sync.batch_size")
)

// StartSpan starts an internal span on the global tracer provider.
// The caller ends the span.
//
//	ctx, span := telemetry.StartSpan(ctx, "payment.webhook", telemetry.AttrOrderID.String(id))
//	defer span.End()
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(InstrumentationName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// RecordError records err on the span and marks it failed
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceID returns the trace id of the span in ctx, or "" when there is none
func TraceID(ctx context.Context) string {
	id := trace.SpanFromContext(ctx).SpanContext().TraceID()
	if !id.IsValid() {
		return ""
	}
	return id.String()
}
