package ollama

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/modeldeck/internal/events"
	"github.com/zjrosen/modeldeck/internal/log"
	"github.com/zjrosen/modeldeck/internal/process"
	"github.com/zjrosen/modeldeck/internal/tracing"
)

// Terminal progress error texts.
const (
	errProcessFailed = "process failed"
	errProcessPrefix = "process error: "
)

var percentPattern = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)%`)

// ParsePullProgress extracts the percentage from one `ollama pull` progress
// line, e.g. "pulling 6a0746a1ec1a...  45% ▕███    ▏ 2.1 GB/4.7 GB".
func ParsePullProgress(line string) (float64, bool) {
	m := percentPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil || pct > 100 {
		return 0, false
	}
	return pct, true
}

// Fetch pulls a model in the background and returns immediately.
//
// Published, in order: a "starting" progress event, the echoed command, the
// captured output, and exactly one completed progress event that carries an
// error if and only if the pull failed.
func (s *Service) Fetch(ctx context.Context, model string) {
	inv := s.invocation("pull", model)
	command := inv.String()

	s.background(ctx, func(ctx context.Context) {
		ctx, span := tracing.StartOp(ctx, s.tracer, OpPullModel,
			attribute.String(tracing.AttrModel, model),
			attribute.Bool(tracing.AttrAsync, true))

		log.Info(log.CatOps, "Pulling model", "model", model, "streaming", s.streamPull)

		s.emitter.Emit(events.ChannelProgress, events.Starting(model))
		s.emitter.Emit(events.ChannelOutput, events.Echo(command))

		var failure string
		if s.streamPull {
			failure = s.pullStreaming(ctx, inv, model)
		} else {
			failure = s.pullBuffered(ctx, inv)
		}

		if failure == "" {
			s.emitter.Emit(events.ChannelProgress, events.Succeeded(model))
			log.Info(log.CatOps, "Pulled model", "model", model)
			tracing.End(span, nil)
			return
		}

		s.emitter.Emit(events.ChannelProgress, events.Failed(model, failure))
		log.Warn(log.CatOps, "Pull failed", "model", model, "reason", failure)
		tracing.End(span, errors.New(failure))
	})
}

// emitSpawnFailure publishes the error line shared by every async path.
func (s *Service) emitSpawnFailure(command string, err error) {
	s.emitter.Emit(events.ChannelOutput, events.OutputWithExit(command, "Error: "+err.Error(), process.NoExitCode))
}

// pullBuffered returns "" on success, otherwise the terminal error text.
func (s *Service) pullBuffered(ctx context.Context, inv process.Invocation) string {
	command := inv.String()
	out := s.runTraced(ctx, inv)

	if out.SpawnErr != nil {
		s.emitSpawnFailure(command, out.SpawnErr)
		return errProcessPrefix + out.SpawnErr.Error()
	}
	if len(out.Stdout) > 0 {
		s.emitter.Emit(events.ChannelOutput, events.Output(command, string(out.Stdout)))
	}
	if len(out.Stderr) > 0 {
		s.emitter.Emit(events.ChannelOutput, events.Output(command, string(out.Stderr)))
	}
	if !out.Success() {
		return errProcessFailed
	}
	return ""
}

// pullStreaming publishes each output line as it arrives, plus a
// "downloading" progress event whenever the parsed percentage changes.
func (s *Service) pullStreaming(ctx context.Context, inv process.Invocation, model string) string {
	command := inv.String()
	stream, err := s.runner.Stream(ctx, inv)
	if err != nil {
		s.emitSpawnFailure(command, err)
		return errProcessPrefix + err.Error()
	}

	last := -1.0
	lines := 0
	for line := range stream.Lines() {
		text := strings.TrimSpace(ansi.Strip(line.Text))
		if text == "" {
			continue
		}
		lines++
		s.emitter.Emit(events.ChannelOutput, events.Output(command, text))
		if pct, ok := ParsePullProgress(text); ok && pct != last {
			last = pct
			s.emitter.Emit(events.ChannelProgress, events.Downloading(model, pct))
		}
	}

	term := stream.Wait()
	spanFromTermination(ctx, inv, term, lines)
	if !term.Success() {
		return errProcessFailed
	}
	return ""
}
