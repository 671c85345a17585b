package ollama

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/modeldeck/internal/events"
	"github.com/zjrosen/modeldeck/internal/log"
	"github.com/zjrosen/modeldeck/internal/tracing"
)

const chatErrorPrefix = "Failed to get response: "

// Chat sends one message to a model in the background and returns immediately.
// Exactly one chat-message or chat-error event is published.
//
// Any run that starts counts as a reply, including one that exits non-zero:
// its stdout (possibly empty) is published as the assistant message and the
// exit code is only logged. Only a spawn failure produces chat-error.
func (s *Service) Chat(ctx context.Context, model, message string) {
	inv := s.invocation("run", model, message)

	s.background(ctx, func(ctx context.Context) {
		ctx, span := tracing.StartOp(ctx, s.tracer, OpChat,
			attribute.String(tracing.AttrModel, model),
			attribute.Bool(tracing.AttrAsync, true))

		out := s.runTraced(ctx, inv)
		if out.SpawnErr != nil {
			s.emitter.Emit(events.ChannelChatError, chatErrorPrefix+out.SpawnErr.Error())
			tracing.End(span, out.SpawnErr)
			return
		}

		if !out.Success() {
			log.Warn(log.CatOps, "Chat process exited non-zero, publishing output as reply",
				"model", model, "exitCode", out.Code(), "stderr", string(out.Stderr))
		}

		s.emitter.Emit(events.ChannelChatMessage, events.ChatMessageEvent{
			Role:    events.RoleAssistant,
			Content: string(out.Stdout),
		})
		tracing.End(span, nil)
	})
}
