// Package ollama implements the operations the UI can invoke against the
// local ollama CLI. Synchronous operations return their result directly;
// asynchronous ones return as soon as work is scheduled and report
// everything afterwards through the events.Emitter.
package ollama

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/modeldeck/internal/cachemanager"
	"github.com/zjrosen/modeldeck/internal/events"
	"github.com/zjrosen/modeldeck/internal/process"
)

// Operation names, shared with the dispatch registry and span names.
const (
	OpListModels       = "list_models"
	OpCheckStatus      = "check_ollama_status"
	OpPullModel        = "pull_model"
	OpRunModel         = "run_model"
	OpDeleteModel      = "delete_model"
	OpChat             = "send_chat_message"
	OpExecute          = "execute_terminal_command"
	OpExecuteStreaming = "execute_terminal_command_streaming"
	OpStatus           = "ollama_status"
	OpShowModel        = "show_model"
)

// Runner is the subset of *process.Runner the service needs.
type Runner interface {
	Run(ctx context.Context, inv process.Invocation) process.CapturedOutput
	Stream(ctx context.Context, inv process.Invocation) (*process.Stream, error)
}

// Option configures a Service.
type Option func(*Service)

// WithBinary sets the ollama program name or path.
func WithBinary(binary string) Option {
	return func(s *Service) {
		if binary != "" {
			s.binary = binary
		}
	}
}

// WithRunner replaces the process runner.
func WithRunner(r Runner) Option {
	return func(s *Service) {
		s.runner = r
	}
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithStreamingPull makes Fetch stream pull output and emit intermediate progress.
func WithStreamingPull(enabled bool) Option {
	return func(s *Service) {
		s.streamPull = enabled
	}
}

// WithDetailsTTL sets how long Show results are cached. Zero disables caching.
func WithDetailsTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.detailsTTL = ttl
	}
}

// Service runs ollama commands and publishes their results.
type Service struct {
	binary     string
	runner     Runner
	emitter    events.Emitter
	tracer     trace.Tracer
	streamPull bool
	detailsTTL time.Duration
	details    *cachemanager.ReadThroughCache[string, string, string]

	wg sync.WaitGroup
}

// New creates a Service publishing to emitter.
func New(emitter events.Emitter, opts ...Option) *Service {
	s := &Service{
		binary:     "ollama",
		runner:     process.NewRunner(),
		emitter:    emitter,
		tracer:     noop.NewTracerProvider().Tracer("noop"),
		detailsTTL: cachemanager.DefaultExpiration,
	}
	for _, opt := range opts {
		opt(s)
	}

	manager := cachemanager.NewInMemoryCacheManager[string, string]("model-details", s.detailsTTL, cachemanager.DefaultCleanupInterval)
	s.details = cachemanager.NewReadThroughCache[string, string, string](manager, s.show, s.detailsTTL <= 0)
	return s
}

// Binary returns the configured ollama program.
func (s *Service) Binary() string {
	return s.binary
}

// Wait blocks until every background task started so far has published its
// terminal event.
func (s *Service) Wait() {
	s.wg.Wait()
}

// background runs fn on its own goroutine. The caller's cancellation does not
// reach fn, but its values (trace span, ...) do.
func (s *Service) background(ctx context.Context, fn func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
}

// InvalidateDetails drops every cached Show result. Called when the model
// store changes on disk.
func (s *Service) InvalidateDetails(ctx context.Context) {
	s.details.InvalidateAll(ctx)
}

func (s *Service) invocation(args ...string) process.Invocation {
	return process.NewInvocation(s.binary, args...)
}
