package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/fistfulayen/ubtrippin-sub001"

// Tracer provides OpenTelemetry tracing for dispatch and delivery.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer() *Tracer {
	return NewTracerFromProvider(otel.GetTracerProvider())
}

// NewTracerFromProvider creates a tracer from an explicit provider.
func NewTracerFromProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{
		tracer: tp.Tracer(tracerName),
	}
}

// StartDispatchSpan starts a span around one fan-out.
func (t *Tracer) StartDispatchSpan(ctx context.Context, eventType, ownerUserID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "ubtrippin.dispatch",
		trace.WithAttributes(
			attribute.String("ubtrippin.event", eventType),
			attribute.String("ubtrippin.user_id", ownerUserID),
		),
	)
}

// EndDispatchSpan ends a dispatch span.
func (t *Tracer) EndDispatchSpan(span trace.Span, webhooks, deliveries int, err error) {
	span.SetAttributes(
		attribute.Int("ubtrippin.webhook_count", webhooks),
		attribute.Int("ubtrippin.delivery_count", deliveries),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// StartBatchSpan starts a span around one worker cycle.
func (t *Tracer) StartBatchSpan(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "ubtrippin.batch")
}

// EndBatchSpan ends a batch span with its counters.
func (t *Tracer) EndBatchSpan(span trace.Span, fetched, processed int) {
	span.SetAttributes(
		attribute.Int("ubtrippin.fetched", fetched),
		attribute.Int("ubtrippin.processed", processed),
	)
	span.End()
}

// StartDeliverySpan starts a new span for a delivery attempt.
func (t *Tracer) StartDeliverySpan(ctx context.Context, deliveryID, webhookID string, attempt int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "ubtrippin.delivery",
		trace.WithAttributes(
			attribute.String("ubtrippin.delivery_id", deliveryID),
			attribute.String("ubtrippin.webhook_id", webhookID),
			attribute.Int("ubtrippin.attempt", attempt),
		),
	)
}

// EndDeliverySpan ends a delivery span with result attributes.
func (t *Tracer) EndDeliverySpan(span trace.Span, outcome string, statusCode, latencyMs int, err string) {
	span.SetAttributes(
		attribute.String("ubtrippin.outcome", outcome),
		attribute.Int("http.status_code", statusCode),
		attribute.Int("ubtrippin.latency_ms", latencyMs),
	)
	if err != "" {
		span.SetAttributes(attribute.String("ubtrippin.error", err))
	}
	span.End()
}
