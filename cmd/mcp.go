package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/modeldeck/internal/log"
	"github.com/zjrosen/modeldeck/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve operations as MCP tools over stdio",
	Long: `Run a Model Context Protocol server on stdin and stdout. Every operation
is exposed as a tool. Pulls, chats and commands run to completion and return
the events they published, one JSON object per line.

Logs go to stderr so they never mix with the protocol stream.

Example client entry:
  {"command": "modeldeck", "args": ["mcp"]}`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	level := log.LevelWarn
	if debugEnabled() {
		level = log.LevelDebug
	}
	log.InitWriter(os.Stderr, level)

	c := cfg
	// Watcher events would land in unrelated tool results.
	c.Watcher.Enabled = false

	rt, err := newRuntime(commandContext(cmd), c)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Close(ctx); err != nil {
			log.ErrorErr(log.CatMCP, "Error shutting down", err)
		}
	}()

	srv := mcpserver.New(mcpserver.Config{
		Invoker: rt.registry,
		Events:  rt.bus,
		Waiter:  rt.service,
		Version: version,
	})
	return srv.ServeStdio()
}
