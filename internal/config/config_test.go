package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestDefaults_AreValid(t *testing.T) {
	cfg := Defaults()

	require.NoError(t, cfg.Validate())
	require.Equal(t, "ollama", cfg.Ollama.Binary)
	require.False(t, cfg.Ollama.StreamPull)
	require.Equal(t, 10*time.Minute, cfg.Ollama.ShowCacheTTL)
	require.Equal(t, 256, cfg.Events.BufferSize)
	require.False(t, cfg.Tracing.Enabled)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty binary", func(c *Config) { c.Ollama.Binary = "" }, "ollama.binary must not be empty"},
		{"negative ttl", func(c *Config) { c.Ollama.ShowCacheTTL = -time.Second }, "ollama.show_cache_ttl"},
		{"bad env", func(c *Config) { c.Ollama.Env = []string{"NOEQUALS"} }, "KEY=VALUE"},
		{"empty env key", func(c *Config) { c.Ollama.Env = []string{"=x"} }, "KEY=VALUE"},
		{"zero buffer", func(c *Config) { c.Events.BufferSize = 0 }, "events.buffer_size"},
		{"history path", func(c *Config) { c.History.Path = "" }, "history.path"},
		{"markdown style", func(c *Config) { c.UI.MarkdownStyle = "neon" }, "ui.markdown_style"},
		{"sample rate", func(c *Config) { c.Tracing.SampleRate = 1.5 }, "tracing.sample_rate"},
		{"exporter", func(c *Config) { c.Tracing.Exporter = "zipkin" }, "tracing.exporter"},
		{"otlp endpoint", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
			c.Tracing.OTLPEndpoint = ""
		}, "tracing.otlp_endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestValidate_AcceptsEnvPairs(t *testing.T) {
	cfg := Defaults()
	cfg.Ollama.Env = []string{"OLLAMA_HOST=127.0.0.1:11434", "EMPTY="}
	require.NoError(t, cfg.Validate())
}

// TestDefaultConfigTemplate_LoadsThroughViper verifies the written template
// decodes into the same values as Defaults().
func TestDefaultConfigTemplate_LoadsThroughViper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg := Defaults()
	require.NoError(t, v.Unmarshal(&cfg))

	defaults := Defaults()
	require.Equal(t, defaults.Ollama.Binary, cfg.Ollama.Binary)
	require.Equal(t, defaults.Ollama.ShowCacheTTL, cfg.Ollama.ShowCacheTTL)
	require.Equal(t, defaults.API.Addr, cfg.API.Addr)
	require.Equal(t, defaults.Events.BufferSize, cfg.Events.BufferSize)
	require.Equal(t, defaults.Watcher.Debounce, cfg.Watcher.Debounce)
	require.NoError(t, cfg.Validate())
}

func TestTracingConfig_ToTracing(t *testing.T) {
	tc := TracingConfig{Enabled: true, Exporter: "stdout", SampleRate: 0.25}

	got := tc.ToTracing()

	require.True(t, got.Enabled)
	require.Equal(t, "stdout", got.Exporter)
	require.Equal(t, 0.25, got.SampleRate)
	require.Equal(t, "localhost:4317", got.OTLPEndpoint)
	require.Equal(t, DefaultTracesFilePath(), got.FilePath)
}

func TestDefaultModelsDir_HonorsEnv(t *testing.T) {
	t.Setenv("OLLAMA_MODELS", "/srv/models")
	require.Equal(t, "/srv/models", DefaultModelsDir())
}
