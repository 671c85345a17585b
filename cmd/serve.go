package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/modeldeck/internal/api"
	"github.com/zjrosen/modeldeck/internal/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP bridge for UI clients",
	Long: `Run modeldeck as a local HTTP service. UI clients invoke operations with
POST /invoke/{name} and receive events over SSE from GET /events or as
WebSocket messages from GET /ws. GET /operations describes every operation
and its arguments.

Example:
  modeldeck serve                        # Listen on api.addr (default 127.0.0.1:7878)
  modeldeck serve --addr 127.0.0.1:0     # Let the OS pick a port
  curl -N localhost:7878/events?channel=progress
  curl -X POST localhost:7878/invoke/pull_model -d '{"model_name":"llama3"}'`,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (overrides config)")
}

func runServe(_ *cobra.Command, _ []string) error {
	level := log.LevelInfo
	if debugEnabled() {
		level = log.LevelDebug
	}
	log.InitWriter(os.Stderr, level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.API.Addr
	}

	cfgHandler := api.HandlerConfig{
		Invoker: rt.registry,
		Events:  rt.bus,
		Status:  rt.service,
	}
	// A nil *history.Store must not become a non-nil HistoryReader.
	if store := rt.historyReader(); store != nil {
		cfgHandler.History = store
	}

	server, err := api.NewServer(api.ServerConfig{Addr: addr, Handler: cfgHandler})
	if err != nil {
		_ = rt.Close(ctx)
		return fmt.Errorf("creating API server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("modeldeck listening on port %d\n", server.Port())
	fmt.Println("Press Ctrl+C to stop")

	var serveErr error
	select {
	case sig := <-sigCh:
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
	case serveErr = <-errCh:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.ErrorErr(log.CatAPI, "Error stopping API server", err)
	}
	if err := rt.Close(shutdownCtx); err != nil {
		log.ErrorErr(log.CatConfig, "Error shutting down", err)
	}

	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}
	return nil
}
