package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/zjrosen/modeldeck/internal/log"
	"github.com/zjrosen/modeldeck/internal/tui"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Run the terminal UI (default command)",
	RunE:  runUI,
}

func init() {
	rootCmd.AddCommand(uiCmd)
}

func runUI(_ *cobra.Command, _ []string) error {
	if debugEnabled() {
		cleanup, err := log.InitWithTeaLog(debugLogPath(), "modeldeck")
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		defer cleanup()
		log.Info(log.CatConfig, "modeldeck ui starting", "version", version)
	} else {
		// Warnings still reach the scrollback.
		log.InitWriter(io.Discard, log.LevelWarn)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logs := log.NewListener(ctx, log.LevelWarn, log.LevelError)

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}

	model := tui.New(ctx, tui.Config{
		Invoker:       rt.registry,
		Broker:        rt.bus.Broker(),
		MarkdownStyle: cfg.UI.MarkdownStyle,
		Logs:          logs,
	})
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if closeErr := rt.Close(shutdownCtx); closeErr != nil && err == nil {
		err = closeErr
	}

	if err != nil {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}
