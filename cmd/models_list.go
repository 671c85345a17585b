package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/modeldeck/internal/events"
	"github.com/zjrosen/modeldeck/internal/ollama"
	"github.com/zjrosen/modeldeck/internal/presentation"
	"github.com/zjrosen/modeldeck/internal/process"
)

var modelsJSON bool

var modelsListCmd = &cobra.Command{
	Use:   "models:list",
	Short: "List installed models",
	Long: `List the models installed in the local ollama store.

Examples:
  modeldeck models:list
  modeldeck models:list --json | jq '.[].name'`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc := newOneShotService()
		models, err := svc.ListInstalled(commandContext(cmd))
		if err != nil {
			return err
		}

		formatter := presentation.NewFormatter(os.Stdout)
		if modelsJSON {
			return formatter.FormatJSON(models)
		}
		return formatter.FormatModelsTable(models)
	},
}

func init() {
	modelsListCmd.Flags().BoolVar(&modelsJSON, "json", false, "Print models as JSON")
	rootCmd.AddCommand(modelsListCmd)
}

// newOneShotService creates a service for synchronous operations. Nothing it
// runs publishes events.
func newOneShotService() *ollama.Service {
	discard := events.EmitterFunc(func(string, any) {})
	return ollama.New(discard,
		ollama.WithBinary(cfg.Ollama.Binary),
		ollama.WithRunner(process.NewRunner(process.WithEnv(cfg.Ollama.Env))),
	)
}

// commandContext returns the command's context or Background.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
