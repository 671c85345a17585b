package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/modeldeck/internal/config"
)

var configSetCmd = &cobra.Command{
	Use:   "config:set <key> <value>",
	Short: "Set a value in the config file",
	Long: `Set one dotted key in the active config file, keeping its comments.
The resulting configuration is validated before it is written.

Examples:
  modeldeck config:set ollama.stream_pull true
  modeldeck config:set api.addr 127.0.0.1:9000`,
	Args: cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		path := configFileUsed()
		if err := validateSetting(path, args[0], args[1]); err != nil {
			return err
		}
		if err := config.SetValue(path, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Set %s = %s in %s\n", args[0], args[1], path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configSetCmd)
}

// validateSetting applies key=value on top of the file at path and validates the result.
func validateSetting(path, key, value string) error {
	v := viper.New()
	setDefaults(v, config.Defaults())
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	v.Set(key, value)

	var c config.Config
	if err := v.Unmarshal(&c); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}
