// Package config provides configuration types and defaults for modeldeck.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zjrosen/modeldeck/internal/log"
	"github.com/zjrosen/modeldeck/internal/tracing"
)

// Config holds all configuration options for modeldeck.
type Config struct {
	Ollama  OllamaConfig  `mapstructure:"ollama"`
	API     APIConfig     `mapstructure:"api"`
	Events  EventsConfig  `mapstructure:"events"`
	History HistoryConfig `mapstructure:"history"`
	Watcher WatcherConfig `mapstructure:"watcher"`
	Tracing TracingConfig `mapstructure:"tracing"`
	UI      UIConfig      `mapstructure:"ui"`
}

// OllamaConfig controls how the ollama CLI is invoked.
type OllamaConfig struct {
	// Binary is the program name or path. Default: "ollama".
	Binary string `mapstructure:"binary"`

	// StreamPull streams `ollama pull` output line by line and emits
	// intermediate progress. When false the pull runs buffered.
	StreamPull bool `mapstructure:"stream_pull"`

	// ModelsDir is the local model store watched for external changes.
	// Default: ~/.ollama/models
	ModelsDir string `mapstructure:"models_dir"`

	// ShowCacheTTL is how long `ollama show` output is cached per model.
	ShowCacheTTL time.Duration `mapstructure:"show_cache_ttl"`

	// Env holds extra KEY=VALUE pairs passed to every ollama process (e.g. OLLAMA_HOST).
	Env []string `mapstructure:"env"`
}

// APIConfig configures the local HTTP bridge used by UI clients.
type APIConfig struct {
	Addr string `mapstructure:"addr"`
}

// EventsConfig configures the event bus.
type EventsConfig struct {
	// BufferSize is the per-subscriber buffer. Slower subscribers drop events.
	BufferSize int `mapstructure:"buffer_size"`
}

// HistoryConfig configures the persisted event log.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// WatcherConfig configures the models directory watcher.
type WatcherConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// TracingConfig holds tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active. Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend: "none", "file", "stdout", "otlp".
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for the "file" exporter.
	// Default: ~/.config/modeldeck/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for the "otlp" exporter.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate"`
}

// UIConfig holds terminal UI options.
type UIConfig struct {
	MarkdownStyle string `mapstructure:"markdown_style"` // "dark" (default) or "light"
}

// ToTracing converts to the tracing package's Config.
func (t TracingConfig) ToTracing() tracing.Config {
	cfg := tracing.DefaultConfig()
	cfg.Enabled = t.Enabled
	if t.Exporter != "" {
		cfg.Exporter = t.Exporter
	}
	cfg.FilePath = t.FilePath
	if cfg.FilePath == "" {
		cfg.FilePath = DefaultTracesFilePath()
	}
	if t.OTLPEndpoint != "" {
		cfg.OTLPEndpoint = t.OTLPEndpoint
	}
	if t.SampleRate > 0 {
		cfg.SampleRate = t.SampleRate
	}
	return cfg
}

func homeJoin(elem ...string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(append([]string{home}, elem...)...)
}

// DefaultTracesFilePath returns ~/.config/modeldeck/traces/traces.jsonl,
// or "" if the home dir is unavailable.
func DefaultTracesFilePath() string {
	return homeJoin(".config", "modeldeck", "traces", "traces.jsonl")
}

// DefaultHistoryPath returns ~/.modeldeck/history.db.
func DefaultHistoryPath() string {
	return homeJoin(".modeldeck", "history.db")
}

// DefaultModelsDir returns the directory ollama stores models in, honoring OLLAMA_MODELS.
func DefaultModelsDir() string {
	if dir := os.Getenv("OLLAMA_MODELS"); dir != "" {
		return dir
	}
	return homeJoin(".ollama", "models")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Ollama: OllamaConfig{
			Binary:       "ollama",
			StreamPull:   false,
			ModelsDir:    DefaultModelsDir(),
			ShowCacheTTL: 10 * time.Minute,
		},
		API: APIConfig{
			Addr: "127.0.0.1:7878",
		},
		Events: EventsConfig{
			BufferSize: 256,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    DefaultHistoryPath(),
		},
		Watcher: WatcherConfig{
			Enabled:  true,
			Debounce: 300 * time.Millisecond,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     tracing.ExporterFile,
			FilePath:     "", // Derived at runtime
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		UI: UIConfig{
			MarkdownStyle: "dark",
		},
	}
}

// Validate checks the whole configuration.
func (c Config) Validate() error {
	if err := ValidateOllama(c.Ollama); err != nil {
		return err
	}
	if c.Events.BufferSize <= 0 {
		return fmt.Errorf("events.buffer_size must be positive, got %d", c.Events.BufferSize)
	}
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}
	if c.Watcher.Debounce < 0 {
		return fmt.Errorf("watcher.debounce must not be negative, got %s", c.Watcher.Debounce)
	}
	if c.UI.MarkdownStyle != "" && c.UI.MarkdownStyle != "dark" && c.UI.MarkdownStyle != "light" {
		return fmt.Errorf("ui.markdown_style must be \"dark\" or \"light\", got %q", c.UI.MarkdownStyle)
	}
	return ValidateTracing(c.Tracing)
}

// ValidateOllama checks the ollama section.
func ValidateOllama(o OllamaConfig) error {
	if o.Binary == "" {
		return fmt.Errorf("ollama.binary must not be empty")
	}
	if o.ShowCacheTTL < 0 {
		return fmt.Errorf("ollama.show_cache_ttl must not be negative, got %s", o.ShowCacheTTL)
	}
	for _, kv := range o.Env {
		if key, _, ok := strings.Cut(kv, "="); !ok || key == "" {
			return fmt.Errorf("ollama.env entries must be KEY=VALUE, got %q", kv)
		}
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Empty values use defaults.
func ValidateTracing(t TracingConfig) error {
	if t.SampleRate < 0.0 || t.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", t.SampleRate)
	}

	if t.Exporter != "" {
		switch t.Exporter {
		case tracing.ExporterNone, tracing.ExporterFile, tracing.ExporterStdout, tracing.ExporterOTLP:
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", t.Exporter)
		}
	}

	if t.Enabled && t.Exporter == tracing.ExporterOTLP && t.OTLPEndpoint == "" {
		return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# modeldeck configuration

ollama:
  binary: ollama            # Program name or absolute path of the ollama CLI
  stream_pull: false        # Stream pull output and report intermediate progress
  # models_dir: ~/.ollama/models   # Watched for models added/removed outside modeldeck
  show_cache_ttl: 10m       # How long 'ollama show' output is cached
  # env:
  #   - OLLAMA_HOST=127.0.0.1:11434

# Local HTTP bridge for UI clients (POST /invoke/{name}, GET /events)
api:
  addr: 127.0.0.1:7878

events:
  buffer_size: 256          # Per-subscriber buffer; slow subscribers drop events

history:
  enabled: true             # Persist every published event to SQLite
  # path: ~/.modeldeck/history.db

watcher:
  enabled: true
  debounce: 300ms

ui:
  markdown_style: dark      # Chat rendering style: "dark" or "light"

# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/modeldeck/traces/traces.jsonl
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0
`
}

// WriteDefaultConfig creates a config file at configPath with default settings and comments.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
