// Package mcpserver exposes the operation registry as Model Context Protocol
// tools over stdio.
//
// Every registered operation becomes one tool whose input schema is the
// operation's argument schema. Synchronous operations return their result as
// JSON. Asynchronous operations run to completion and return the events they
// published, one JSON object per line.
package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/zjrosen/modeldeck/internal/dispatch"
	"github.com/zjrosen/modeldeck/internal/events"
	"github.com/zjrosen/modeldeck/internal/log"
	"github.com/zjrosen/modeldeck/internal/presentation"
	"github.com/zjrosen/modeldeck/internal/pubsub"
)

const serverName = "modeldeck"

// Invoker runs and describes operations (dispatch.Registry).
type Invoker interface {
	Invoke(ctx context.Context, name string, args json.RawMessage) (any, error)
	Operations() []dispatch.Operation
}

// EventSource is subscribed to while an async operation runs (events.Bus).
type EventSource interface {
	Subscribe(ctx context.Context, channels ...string) <-chan pubsub.Event[events.Envelope]
}

// Waiter blocks until background work started by operations has finished
// (ollama.Service).
type Waiter interface {
	Wait()
}

// Config configures the server.
type Config struct {
	Invoker Invoker
	Events  EventSource
	Waiter  Waiter
	Version string
}

// Server adapts the registry to MCP.
type Server struct {
	invoker Invoker
	events  EventSource
	waiter  Waiter

	// asyncMu serializes async calls so each result holds only its own events.
	asyncMu sync.Mutex
	// idle closes once the last async call's background work has finished.
	// A call abandoned at its deadline leaves it open. Guarded by asyncMu.
	idle <-chan struct{}

	mcp *server.MCPServer
}

// New builds the MCP server and registers one tool per operation.
func New(cfg Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		invoker: cfg.Invoker,
		events:  cfg.Events,
		waiter:  cfg.Waiter,
		mcp: server.NewMCPServer(serverName, version,
			server.WithToolCapabilities(true),
			server.WithInstructions(`Manage local Ollama models: list, pull, run, show and delete them,
chat with a model, and run shell commands. Pulls, chats and commands return
the events they produced, one JSON object per line.`),
		),
	}

	for _, op := range cfg.Invoker.Operations() {
		s.mcp.AddTool(toolFor(op), s.handler(op))
	}
	return s
}

// ServeStdio serves MCP over stdin and stdout until stdin closes.
func (s *Server) ServeStdio() error {
	log.Info(log.CatMCP, "Starting MCP server over stdio")
	return server.ServeStdio(s.mcp)
}

// toolFor converts an operation description to an MCP tool.
func toolFor(op dispatch.Operation) mcp.Tool {
	var schema struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if len(op.Args) > 0 {
		if err := json.Unmarshal(op.Args, &schema); err != nil {
			log.ErrorErr(log.CatMCP, "Ignoring unreadable argument schema", err, "operation", op.Name)
		}
	}
	if schema.Properties == nil {
		schema.Properties = map[string]any{}
	}

	return mcp.Tool{
		Name:        op.Name,
		Description: op.Description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: schema.Properties,
			Required:   schema.Required,
		},
	}
}

func (s *Server) handler(op dispatch.Operation) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args json.RawMessage
		if request.Params.Arguments != nil {
			var err error
			if args, err = json.Marshal(request.Params.Arguments); err != nil {
				return nil, fmt.Errorf("failed to marshal arguments: %w", err)
			}
		}

		log.Debug(log.CatMCP, "Tool called", "name", op.Name, "async", op.Async)
		if op.Async {
			return s.callAsync(ctx, op.Name, args), nil
		}
		return s.callSync(ctx, op.Name, args), nil
	}
}

func (s *Server) callSync(ctx context.Context, name string, args json.RawMessage) *mcp.CallToolResult {
	result, err := s.invoker.Invoke(ctx, name, args)
	if err != nil {
		return errorResult(err.Error())
	}

	var buf bytes.Buffer
	if err := presentation.NewFormatter(&buf).FormatJSON(result); err != nil {
		return errorResult(fmt.Sprintf("failed to encode result: %v", err))
	}
	return textResult(buf.String(), false)
}

// callAsync invokes the operation and collects everything published until
// its background work finishes.
func (s *Server) callAsync(ctx context.Context, name string, args json.RawMessage) *mcp.CallToolResult {
	s.asyncMu.Lock()
	defer s.asyncMu.Unlock()

	if s.idle != nil {
		select {
		case <-s.idle:
		case <-ctx.Done():
			return errorResult(fmt.Sprintf("%s not started, previous operation still running: %v", name, ctx.Err()))
		}
	}

	subCtx, cancelSub := context.WithCancel(ctx)
	defer cancelSub()
	sub := s.events.Subscribe(subCtx)

	collected := make(chan []events.Envelope, 1)
	go func() {
		var envs []events.Envelope
		for ev := range sub {
			envs = append(envs, ev.Payload)
		}
		collected <- envs
	}()

	if _, err := s.invoker.Invoke(ctx, name, args); err != nil {
		cancelSub()
		<-collected
		return errorResult(err.Error())
	}

	done := make(chan struct{})
	go func() {
		s.waiter.Wait()
		close(done)
	}()
	s.idle = done
	select {
	case <-done:
	case <-ctx.Done():
		cancelSub()
		<-collected
		return errorResult(fmt.Sprintf("%s did not finish: %v", name, ctx.Err()))
	}

	cancelSub()
	envs := <-collected

	var buf bytes.Buffer
	formatter := presentation.NewFormatter(&buf)
	failed := false
	for _, env := range envs {
		if err := formatter.FormatEventLine(presentation.FromEnvelope(env)); err != nil {
			log.ErrorErr(log.CatMCP, "Failed to encode event", err, "channel", env.Channel)
		}
		failed = failed || isFailure(env)
	}
	return textResult(buf.String(), failed)
}

// isFailure reports whether env announces that the operation failed.
func isFailure(env events.Envelope) bool {
	switch p := env.Payload.(type) {
	case events.ProgressEvent:
		return p.Completed && p.Error != nil
	default:
		return env.Channel == events.ChannelChatError
	}
}

func textResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: text,
			},
		},
		IsError: isError,
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return textResult(msg, true)
}
