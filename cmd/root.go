package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/modeldeck/internal/config"
	"github.com/zjrosen/modeldeck/internal/log"
)

func init() {
	// Force lipgloss/termenv to query terminal background color BEFORE
	// any Bubble Tea program starts. This prevents the terminal's OSC 11
	// response from racing with Bubble Tea's input loop and appearing as
	// garbage text in input fields.
	//
	// See: https://github.com/charmbracelet/bubbletea/issues/1036
	_ = lipgloss.HasDarkBackground()
}

// envPrefix is the prefix for environment overrides (MODELDECK_OLLAMA_BINARY, ...).
const envPrefix = "MODELDECK"

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config
	cfgErr    error
)

var rootCmd = &cobra.Command{
	Use:     "modeldeck",
	Short:   "Manage and chat with local ollama models",
	Long:    `modeldeck runs the local ollama CLI on behalf of a UI and streams its progress and output back as events.`,
	Version: version,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if cfgErr != nil {
			return cfgErr
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		return nil
	},
	RunE: runUI,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/modeldeck/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"enable debug logging (also MODELDECK_DEBUG)")
	rootCmd.PersistentFlags().String("ollama", "", "ollama program name or path")

	_ = viper.BindPFlag("ollama.binary", rootCmd.PersistentFlags().Lookup("ollama"))
}

// setDefaults registers every key of defaults so env overrides and Unmarshal see them.
func setDefaults(v *viper.Viper, d config.Config) {
	v.SetDefault("ollama.binary", d.Ollama.Binary)
	v.SetDefault("ollama.stream_pull", d.Ollama.StreamPull)
	v.SetDefault("ollama.models_dir", d.Ollama.ModelsDir)
	v.SetDefault("ollama.show_cache_ttl", d.Ollama.ShowCacheTTL)
	v.SetDefault("ollama.env", d.Ollama.Env)
	v.SetDefault("api.addr", d.API.Addr)
	v.SetDefault("events.buffer_size", d.Events.BufferSize)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("watcher.enabled", d.Watcher.Enabled)
	v.SetDefault("watcher.debounce", d.Watcher.Debounce)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("ui.markdown_style", d.UI.MarkdownStyle)
}

// userConfigPath returns ~/.config/modeldeck/config.yaml.
func userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".modeldeck", "config.yaml")
	}
	return filepath.Join(home, ".config", "modeldeck", "config.yaml")
}

// loadConfig reads configuration into a Config.
//
// Lookup order when explicit is empty:
//  1. .modeldeck/config.yaml (current directory)
//  2. ~/.config/modeldeck/config.yaml, written with defaults if missing
func loadConfig(v *viper.Viper, explicit string) (config.Config, error) {
	setDefaults(v, config.Defaults())
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := explicit
	if path == "" {
		if _, err := os.Stat(filepath.Join(".modeldeck", "config.yaml")); err == nil {
			path = filepath.Join(".modeldeck", "config.yaml")
		} else {
			path = userConfigPath()
			if _, err := os.Stat(path); os.IsNotExist(err) {
				// If write fails, just continue with defaults (no config file)
				if writeErr := config.WriteDefaultConfig(path); writeErr != nil {
					path = ""
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return config.Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		log.Debug(log.CatConfig, "Loaded config", "path", path)
	}

	var c config.Config
	if err := v.Unmarshal(&c); err != nil {
		return config.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return c, nil
}

func initConfig() {
	cfg, cfgErr = loadConfig(viper.GetViper(), cfgFile)
}

// debugEnabled reports whether --debug or MODELDECK_DEBUG is set.
func debugEnabled() bool {
	return debugFlag || os.Getenv(envPrefix+"_DEBUG") != ""
}

// debugLogPath returns MODELDECK_LOG or debug.log.
func debugLogPath() string {
	if p := os.Getenv(envPrefix + "_LOG"); p != "" {
		return p
	}
	return "debug.log"
}

// configFileUsed returns the active config file, falling back to the user config path.
func configFileUsed() string {
	if p := viper.ConfigFileUsed(); p != "" {
		return p
	}
	return userConfigPath()
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
