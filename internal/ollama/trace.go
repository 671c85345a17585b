package ollama

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/modeldeck/internal/process"
	"github.com/zjrosen/modeldeck/internal/tracing"
)

func spanFromOutput(ctx context.Context, inv process.Invocation, out process.CapturedOutput) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String(tracing.AttrProgram, inv.Program),
		attribute.Int(tracing.AttrArgCount, len(inv.Args)),
		attribute.Int(tracing.AttrExitCode, out.Code()),
		attribute.String(tracing.AttrProcessStatus, process.StatusOf(out).String()),
	)
	if out.SpawnErr != nil {
		span.AddEvent(tracing.EventProcessExited, trace.WithAttributes(attribute.String("error", out.SpawnErr.Error())))
		return
	}
	span.AddEvent(tracing.EventProcessExited)
}

func spanFromTermination(ctx context.Context, inv process.Invocation, term process.Termination, lines int) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String(tracing.AttrProgram, inv.Program),
		attribute.Int(tracing.AttrArgCount, len(inv.Args)),
		attribute.Int(tracing.AttrExitCode, term.ExitCode),
		attribute.Int(tracing.AttrEventsEmitted, lines),
	)
	span.AddEvent(tracing.EventProcessExited)
}
