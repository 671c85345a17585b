package ollama

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/modeldeck/internal/events"
	"github.com/zjrosen/modeldeck/internal/log"
	"github.com/zjrosen/modeldeck/internal/process"
	"github.com/zjrosen/modeldeck/internal/tracing"
)

// Execute runs an arbitrary command line. Blank input does nothing.
//
// The "$ command" echo is published before Execute returns; the combined
// output follows from the background as one event carrying the exit code
// (process.NoExitCode if the program could not be started or was killed).
func (s *Service) Execute(ctx context.Context, commandLine string) {
	inv, ok := process.ParseCommandLine(commandLine)
	if !ok {
		return
	}
	command := strings.TrimSpace(commandLine)
	s.emitter.Emit(events.ChannelOutput, events.Echo(command))

	s.background(ctx, func(ctx context.Context) {
		ctx, span := tracing.StartOp(ctx, s.tracer, OpExecute,
			attribute.String(tracing.AttrProgram, inv.Program),
			attribute.Bool(tracing.AttrAsync, true))

		out := s.runTraced(ctx, inv)
		if out.SpawnErr != nil {
			s.emitSpawnFailure(command, out.SpawnErr)
			tracing.End(span, out.SpawnErr)
			return
		}

		s.emitter.Emit(events.ChannelOutput, events.OutputWithExit(command, CombineOutput(out.Stdout, out.Stderr), out.Code()))
		log.Debug(log.CatOps, "Command finished", "program", inv.Program, "exitCode", out.Code())
		tracing.End(span, nil)
	})
}

// CombineOutput joins stdout and stderr. Stderr follows a line break only
// when stdout is non-empty.
func CombineOutput(stdout, stderr []byte) string {
	var sb strings.Builder
	sb.Write(stdout)
	if len(stderr) > 0 {
		if len(stdout) > 0 {
			sb.WriteByte('\n')
		}
		sb.Write(stderr)
	}
	return sb.String()
}

// ExecuteStreaming is Execute with output published line by line as it
// arrives. The final event has empty output and carries the exit code.
func (s *Service) ExecuteStreaming(ctx context.Context, commandLine string) {
	inv, ok := process.ParseCommandLine(commandLine)
	if !ok {
		return
	}
	command := strings.TrimSpace(commandLine)
	s.emitter.Emit(events.ChannelOutput, events.Echo(command))

	s.background(ctx, func(ctx context.Context) {
		ctx, span := tracing.StartOp(ctx, s.tracer, OpExecuteStreaming,
			attribute.String(tracing.AttrProgram, inv.Program),
			attribute.Bool(tracing.AttrAsync, true))

		stream, err := s.runner.Stream(ctx, inv)
		if err != nil {
			s.emitSpawnFailure(command, err)
			tracing.End(span, err)
			return
		}

		lines := 0
		for line := range stream.Lines() {
			lines++
			s.emitter.Emit(events.ChannelOutput, events.Output(command, line.Text))
		}

		term := stream.Wait()
		spanFromTermination(ctx, inv, term, lines)
		s.emitter.Emit(events.ChannelOutput, events.OutputWithExit(command, "", term.ExitCode))
		tracing.End(span, term.Err)
	})
}
