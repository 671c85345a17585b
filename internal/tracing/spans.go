package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrOperation     = "op.name"
	AttrModel         = "ollama.model"
	AttrProgram       = "process.program"
	AttrArgCount      = "process.arg_count"
	AttrExitCode      = "process.exit_code"
	AttrProcessStatus = "process.status"
	AttrAsync         = "op.async"
	AttrEventsEmitted = "events.emitted"
)

// SpanPrefixOp prefixes every operation span name, e.g. "ollama.pull_model".
const SpanPrefixOp = "ollama."

// Span event names.
const (
	EventProcessSpawned = "process.spawned"
	EventProcessExited  = "process.exited"
	EventScheduled      = "op.scheduled"
)

// StartOp starts an internal span for the named operation.
func StartOp(ctx context.Context, tracer trace.Tracer, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String(AttrOperation, op))
	return tracer.Start(ctx, SpanPrefixOp+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// End sets the span status from err and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
