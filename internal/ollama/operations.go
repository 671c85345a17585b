package ollama

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/modeldeck/internal/log"
	"github.com/zjrosen/modeldeck/internal/process"
	"github.com/zjrosen/modeldeck/internal/tracing"
)

// runTraced runs inv buffered inside the current span and records the outcome.
func (s *Service) runTraced(ctx context.Context, inv process.Invocation) process.CapturedOutput {
	out := s.runner.Run(ctx, inv)
	spanFromOutput(ctx, inv, out)
	return out
}

// ListInstalled returns the locally installed models. Failures are returned
// to the caller; nothing is published.
func (s *Service) ListInstalled(ctx context.Context) (models []Model, err error) {
	ctx, span := tracing.StartOp(ctx, s.tracer, OpListModels)
	defer func() { tracing.End(span, err) }()

	out := s.runTraced(ctx, s.invocation("list"))
	if out.SpawnErr != nil {
		return nil, fmt.Errorf("failed to execute ollama list: %w", out.SpawnErr)
	}
	if !out.Success() {
		return nil, newCommandError("ollama list failed", out.Code(), out.Stderr)
	}

	models = ParseList(string(out.Stdout))
	log.Debug(log.CatOps, "Listed models", "count", len(models))
	return models, nil
}

// CheckAvailability reports whether `ollama list` succeeds. It never publishes.
func (s *Service) CheckAvailability(ctx context.Context) (ok bool, err error) {
	ctx, span := tracing.StartOp(ctx, s.tracer, OpCheckStatus)
	defer func() { tracing.End(span, err) }()

	out := s.runTraced(ctx, s.invocation("list"))
	if out.SpawnErr != nil {
		return false, fmt.Errorf("%w: %w", ErrUnavailable, out.SpawnErr)
	}
	return out.Success(), nil
}

// ValidateRunnable checks that a model can be started by asking it for help.
func (s *Service) ValidateRunnable(ctx context.Context, model string) (msg string, err error) {
	ctx, span := tracing.StartOp(ctx, s.tracer, OpRunModel, attribute.String(tracing.AttrModel, model))
	defer func() { tracing.End(span, err) }()

	out := s.runTraced(ctx, s.invocation("run", model, "--help"))
	if out.SpawnErr != nil {
		return "", fmt.Errorf("failed to run model %s: %w", model, out.SpawnErr)
	}
	if !out.Success() {
		return "", newCommandError("failed to run model "+model, out.Code(), out.Stderr)
	}
	return fmt.Sprintf("Model %s is ready to run", model), nil
}

// Remove deletes a model. Its cached details are invalidated on success.
func (s *Service) Remove(ctx context.Context, model string) (msg string, err error) {
	ctx, span := tracing.StartOp(ctx, s.tracer, OpDeleteModel, attribute.String(tracing.AttrModel, model))
	defer func() { tracing.End(span, err) }()

	out := s.runTraced(ctx, s.invocation("rm", model))
	if out.SpawnErr != nil {
		return "", fmt.Errorf("failed to delete model %s: %w", model, out.SpawnErr)
	}
	if !out.Success() {
		return "", newCommandError("failed to delete model "+model, out.Code(), out.Stderr)
	}

	s.details.Invalidate(ctx, model)
	log.Info(log.CatOps, "Deleted model", "model", model)
	return fmt.Sprintf("Model %s deleted successfully", model), nil
}

// DetailedStatus describes the installed ollama CLI.
type DetailedStatus struct {
	Running        bool   `json:"isRunning"`
	Version        string `json:"version,omitempty"`
	Error          string `json:"error,omitempty"`
	ResponseTimeMs int64  `json:"responseTime"`
}

// Status runs `ollama --version`. It never fails; problems are reported in the result.
func (s *Service) Status(ctx context.Context) DetailedStatus {
	ctx, span := tracing.StartOp(ctx, s.tracer, OpStatus)

	start := time.Now()
	out := s.runTraced(ctx, s.invocation("--version"))
	status := DetailedStatus{ResponseTimeMs: time.Since(start).Milliseconds()}

	switch {
	case out.SpawnErr != nil:
		status.Error = out.SpawnErr.Error()
	case !out.Success():
		status.Error = strings.TrimSpace(string(out.Stderr))
		if status.Error == "" {
			status.Error = "failed to get version"
		}
	default:
		status.Running = true
		status.Version = ParseVersion(string(out.Stdout))
	}

	var err error
	if !status.Running {
		err = errors.New(status.Error)
	}
	tracing.End(span, err)
	return status
}

// ParseVersion extracts the version from `ollama --version` output
// ("ollama version is 0.5.7"). Warning lines are ignored.
func ParseVersion(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if i := strings.LastIndex(line, "version is "); i >= 0 {
			return strings.TrimSpace(line[i+len("version is "):])
		}
	}
	if v := strings.TrimSpace(output); v != "" {
		return v
	}
	return "unknown"
}

// Show returns `ollama show <model>` output, cached per model.
func (s *Service) Show(ctx context.Context, model string) (details string, err error) {
	ctx, span := tracing.StartOp(ctx, s.tracer, OpShowModel, attribute.String(tracing.AttrModel, model))
	defer func() { tracing.End(span, err) }()

	return s.details.Get(ctx, model, model, s.detailsTTL)
}

func (s *Service) show(ctx context.Context, model string) (string, error) {
	out := s.runTraced(ctx, s.invocation("show", model))
	if out.SpawnErr != nil {
		return "", fmt.Errorf("failed to show model %s: %w", model, out.SpawnErr)
	}
	if !out.Success() {
		return "", newCommandError("failed to show model "+model, out.Code(), out.Stderr)
	}
	return string(out.Stdout), nil
}
