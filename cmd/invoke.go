package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/modeldeck/internal/config"
	"github.com/zjrosen/modeldeck/internal/log"
	"github.com/zjrosen/modeldeck/internal/presentation"
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <operation> [json-args]",
	Short: "Invoke one operation and print its result and events",
	Long: `Invoke an operation the same way a UI client would. Every event the
operation publishes is printed as one JSON object per line until it
finishes; a synchronous result is printed last.

Examples:
  modeldeck invoke list_models
  modeldeck invoke pull_model '{"model_name":"llama3"}'
  modeldeck invoke send_chat_message '{"model_name":"llama3","message":"hi"}'
  modeldeck invoke execute_terminal_command '{"command":"ollama ps"}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw json.RawMessage
		if len(args) == 2 {
			raw = json.RawMessage(args[1])
			if !json.Valid(raw) {
				return fmt.Errorf("arguments must be valid JSON")
			}
		}
		c := cfg
		c.Watcher.Enabled = false
		return runInvoke(commandContext(cmd), os.Stdout, c, args[0], raw)
	},
}

func init() {
	rootCmd.AddCommand(invokeCmd)
}

func runInvoke(ctx context.Context, w io.Writer, c config.Config, name string, raw json.RawMessage) error {
	rt, err := newRuntime(ctx, c)
	if err != nil {
		return err
	}

	subCtx, cancelSub := context.WithCancel(ctx)
	sub := rt.bus.Subscribe(subCtx)
	printed := make(chan struct{})
	formatter := presentation.NewFormatter(w)
	go func() {
		defer close(printed)
		for ev := range sub {
			if err := formatter.FormatEventLine(presentation.FromEnvelope(ev.Payload)); err != nil {
				log.ErrorErr(log.CatEvents, "Failed to print event", err)
			}
		}
	}()

	result, invokeErr := rt.registry.Invoke(ctx, name, raw)
	rt.service.Wait()
	cancelSub()
	<-printed

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	closeErr := rt.Close(shutdownCtx)

	if invokeErr != nil {
		return invokeErr
	}
	if result != nil {
		if err := formatter.FormatJSON(result); err != nil {
			return err
		}
	}
	return closeErr
}
