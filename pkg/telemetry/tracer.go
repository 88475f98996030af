package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanAttributes describes the span identity attached on Start.
type SpanAttributes struct {
	CampaignID string
	WorkerID   string
	Action     string
}

func (a *SpanAttributes) toKeyValues() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if a.CampaignID != "" {
		attrs = append(attrs, attribute.String("campaign.id", a.CampaignID))
	}
	if a.WorkerID != "" {
		attrs = append(attrs, attribute.String("worker.id", a.WorkerID))
	}
	if a.Action != "" {
		attrs = append(attrs, attribute.String("action.name", a.Action))
	}
	return attrs
}

// EventAttributes are free-form key/values attached to a span event.
type EventAttributes map[string]string

// TelemetryTracer wraps one span. Spawn derives child tracers from it.
type TelemetryTracer struct {
	ctx      context.Context
	tracer   trace.Tracer
	spanName string
	attrs    *SpanAttributes

	span trace.Span
}

func NewTelemetryTracer(ctx context.Context, tracer trace.Tracer, spanName string) *TelemetryTracer {
	return &TelemetryTracer{ctx: ctx, tracer: tracer, spanName: spanName}
}

func (t *TelemetryTracer) WithAttributes(attributes *SpanAttributes) Tracer {
	t.attrs = attributes
	return t
}

func (t *TelemetryTracer) Start() {
	opts := []trace.SpanStartOption{}
	if t.attrs != nil {
		opts = append(opts, trace.WithAttributes(t.attrs.toKeyValues()...))
	}
	t.ctx, t.span = t.tracer.Start(t.ctx, t.spanName, opts...)
}

func (t *TelemetryTracer) AddEvent(name string, attributes EventAttributes) {
	if t.span == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	t.span.AddEvent(name, trace.WithAttributes(attrs...))
}

func (t *TelemetryTracer) SetStatus(code codes.Code, message string) {
	if t.span == nil {
		return
	}
	t.span.SetStatus(code, message)
}

func (t *TelemetryTracer) Spawn(spanName string) Tracer {
	child := NewTelemetryTracer(t.ctx, t.tracer, spanName)
	child.attrs = t.attrs
	child.Start()
	return child
}

func (t *TelemetryTracer) End() {
	if t.span != nil {
		t.span.End()
	}
}
