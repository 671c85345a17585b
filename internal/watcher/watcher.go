// Package watcher watches the local ollama model store and reports changes
// made outside modeldeck (e.g. `ollama pull` run from another terminal).
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/modeldeck/internal/events"
	"github.com/zjrosen/modeldeck/internal/log"
)

// manifestsDir is the subdirectory ollama writes one manifest per model tag to.
const manifestsDir = "manifests"

// Watcher monitors the model manifests tree and sends debounced notifications.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	modelsDir string
	debounce  time.Duration
	onChange  chan string
	done      chan struct{}
}

// Config holds watcher configuration options.
type Config struct {
	ModelsDir   string
	DebounceDur time.Duration
}

// DefaultConfig returns sensible defaults for the watcher.
func DefaultConfig(modelsDir string) Config {
	return Config{
		ModelsDir:   modelsDir,
		DebounceDur: 300 * time.Millisecond,
	}
}

// New creates a new models watcher.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher: fsw,
		modelsDir: cfg.ModelsDir,
		debounce:  cfg.DebounceDur,
		onChange:  make(chan string, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching. The models directory must exist; the manifests tree
// is picked up when it appears. The returned channel receives the path of the
// last change in each debounce window.
func (w *Watcher) Start() (<-chan string, error) {
	if err := w.fsWatcher.Add(w.modelsDir); err != nil {
		return nil, fmt.Errorf("watching directory %s: %w", w.modelsDir, err)
	}
	if err := w.addTree(filepath.Join(w.modelsDir, manifestsDir)); err != nil {
		return nil, err
	}

	go w.loop()

	return w.onChange, nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

// addTree watches root and every directory below it. fsnotify is not recursive.
func (w *Watcher) addTree(root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsWatcher.Add(path); err != nil {
			return fmt.Errorf("watching directory %s: %w", path, err)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// loop processes file system events with debouncing.
func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		pending string
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			if !w.isRelevantEvent(event) {
				continue
			}

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						log.Warn(log.CatWatcher, "Failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}

			pending = event.Name
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if pending != "" {
				// Non-blocking send - drop if a notification is already queued
				select {
				case w.onChange <- pending:
				default:
				}
				pending = ""
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn(log.CatWatcher, "fsnotify error", "error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// isRelevantEvent reports whether event touches the manifests tree.
func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}

	root := filepath.Join(w.modelsDir, manifestsDir)
	return event.Name == root || strings.HasPrefix(event.Name, root+string(filepath.Separator))
}

// Forward publishes a models-changed event for every notification and calls
// onChange (if set) until ctx is cancelled or changes is closed.
func Forward(ctx context.Context, changes <-chan string, emitter events.Emitter, onChange func(context.Context)) {
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-changes:
			if !ok {
				return
			}
			log.Info(log.CatWatcher, "Model store changed", "path", path)
			if onChange != nil {
				onChange(ctx)
			}
			emitter.Emit(events.ChannelModelsChanged, events.ModelsChangedEvent{
				Path:      path,
				Timestamp: events.Timestamp(),
			})
		}
	}
}
