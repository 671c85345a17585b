package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/zjrosen/modeldeck/internal/config"
	"github.com/zjrosen/modeldeck/internal/dispatch"
	"github.com/zjrosen/modeldeck/internal/events"
	"github.com/zjrosen/modeldeck/internal/history"
	"github.com/zjrosen/modeldeck/internal/log"
	"github.com/zjrosen/modeldeck/internal/ollama"
	"github.com/zjrosen/modeldeck/internal/process"
	"github.com/zjrosen/modeldeck/internal/tracing"
	"github.com/zjrosen/modeldeck/internal/watcher"
)

// runtime wires the components every long-running command needs.
type runtime struct {
	bus      *events.Bus
	service  *ollama.Service
	registry *dispatch.Registry
	tracer   *tracing.Provider
	db       *history.DB // nil when history is disabled
	watcher  *watcher.Watcher

	cancel   context.CancelFunc
	recorded <-chan struct{}
	forwards chan struct{}
}

// newRuntime builds the bus, service and registry, and starts the history
// recorder and models watcher when enabled. Failures of optional components
// are logged and the component is skipped.
func newRuntime(ctx context.Context, c config.Config) (*runtime, error) {
	provider, err := tracing.NewProvider(c.Tracing.ToTracing())
	if err != nil {
		return nil, fmt.Errorf("creating tracing provider: %w", err)
	}

	bus := events.NewBus(c.Events.BufferSize)
	svc := ollama.New(bus,
		ollama.WithBinary(c.Ollama.Binary),
		ollama.WithRunner(process.NewRunner(process.WithEnv(c.Ollama.Env))),
		ollama.WithTracer(provider.Tracer()),
		ollama.WithStreamingPull(c.Ollama.StreamPull),
		ollama.WithDetailsTTL(c.Ollama.ShowCacheTTL),
	)

	ctx, cancel := context.WithCancel(ctx)
	rt := &runtime{
		bus:      bus,
		service:  svc,
		registry: dispatch.NewOllamaRegistry(svc),
		tracer:   provider,
		cancel:   cancel,
	}

	if c.History.Enabled {
		db, err := history.NewDB(c.History.Path)
		if err != nil {
			log.ErrorErr(log.CatDB, "History disabled: failed to open database", err, "path", c.History.Path)
		} else {
			rt.db = db
			rt.recorded = history.NewRecorder(db.Store()).Start(ctx, bus)
		}
	}

	if c.Watcher.Enabled && c.Ollama.ModelsDir != "" {
		w, err := watcher.New(watcher.Config{ModelsDir: c.Ollama.ModelsDir, DebounceDur: c.Watcher.Debounce})
		if err == nil {
			var changes <-chan string
			if changes, err = w.Start(); err == nil {
				rt.watcher = w
				rt.forwards = make(chan struct{})
				go func() {
					defer close(rt.forwards)
					watcher.Forward(ctx, changes, bus, svc.InvalidateDetails)
				}()
			} else {
				_ = w.Stop()
			}
		}
		if err != nil {
			log.Warn(log.CatWatcher, "Models watcher disabled", "dir", c.Ollama.ModelsDir, "error", err)
		}
	}

	return rt, nil
}

// Close waits for in-flight operations until ctx ends, then stops every
// component. Operations still running at the deadline are abandoned.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error

	drained := make(chan struct{})
	go func() {
		rt.service.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		log.Warn(log.CatOps, "Shutting down with operations still running", "error", ctx.Err())
		errs = append(errs, fmt.Errorf("waiting for operations: %w", ctx.Err()))
	}

	if rt.watcher != nil {
		errs = append(errs, rt.watcher.Stop())
	}
	rt.cancel()
	if rt.forwards != nil {
		<-rt.forwards
	}
	if rt.recorded != nil {
		<-rt.recorded
	}
	rt.bus.Close()
	if rt.db != nil {
		errs = append(errs, rt.db.Close())
	}
	errs = append(errs, rt.tracer.Shutdown(ctx))
	return errors.Join(errs...)
}

// historyReader returns the store, or nil when history is disabled.
func (rt *runtime) historyReader() *history.Store {
	if rt.db == nil {
		return nil
	}
	return rt.db.Store()
}
