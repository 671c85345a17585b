package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zjrosen/modeldeck/internal/ollama"
)

type modelArgs struct {
	ModelName string `json:"model_name" jsonschema:"description=Model name with optional tag such as llama3:8b"`
}

type chatArgs struct {
	ModelName string  `json:"model_name" jsonschema:"description=Model to answer the message"`
	Message   *string `json:"message" jsonschema:"description=Prompt sent as a single turn"`
}

type commandArgs struct {
	Command *string `json:"command" jsonschema:"description=Command line split on whitespace and run without a shell"`
}

func parseModel(raw json.RawMessage) (string, error) {
	var args modelArgs
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}
	if strings.TrimSpace(args.ModelName) == "" {
		return "", fmt.Errorf("%w: model_name is required", ErrInvalidArgs)
	}
	return args.ModelName, nil
}

func parseCommand(raw json.RawMessage) (string, error) {
	var args commandArgs
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}
	if args.Command == nil {
		return "", fmt.Errorf("%w: command is required", ErrInvalidArgs)
	}
	return *args.Command, nil
}

// NewOllamaRegistry registers every Service operation under its public name.
func NewOllamaRegistry(svc *ollama.Service) *Registry {
	r := NewRegistry()

	r.Register(ollama.OpListModels, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return svc.ListInstalled(ctx)
	}, WithDescription("List installed models"))
	r.Register(ollama.OpCheckStatus, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return svc.CheckAvailability(ctx)
	}, WithDescription("Report whether the ollama CLI can be run"))
	r.Register(ollama.OpStatus, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return svc.Status(ctx), nil
	}, WithDescription("Report the ollama version and probe latency"))

	r.Register(ollama.OpPullModel, func(ctx context.Context, raw json.RawMessage) (any, error) {
		model, err := parseModel(raw)
		if err != nil {
			return nil, err
		}
		svc.Fetch(ctx, model)
		return nil, nil
	}, WithDescription("Download a model. Progress arrives on the progress and output channels"),
		WithArgs(&modelArgs{}), Async())
	r.Register(ollama.OpRunModel, func(ctx context.Context, raw json.RawMessage) (any, error) {
		model, err := parseModel(raw)
		if err != nil {
			return nil, err
		}
		return svc.ValidateRunnable(ctx, model)
	}, WithDescription("Check that a model can be run"), WithArgs(&modelArgs{}))
	r.Register(ollama.OpDeleteModel, func(ctx context.Context, raw json.RawMessage) (any, error) {
		model, err := parseModel(raw)
		if err != nil {
			return nil, err
		}
		return svc.Remove(ctx, model)
	}, WithDescription("Delete an installed model"), WithArgs(&modelArgs{}))
	r.Register(ollama.OpShowModel, func(ctx context.Context, raw json.RawMessage) (any, error) {
		model, err := parseModel(raw)
		if err != nil {
			return nil, err
		}
		return svc.Show(ctx, model)
	}, WithDescription("Show model details"), WithArgs(&modelArgs{}))

	r.Register(ollama.OpChat, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args chatArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		if strings.TrimSpace(args.ModelName) == "" {
			return nil, fmt.Errorf("%w: model_name is required", ErrInvalidArgs)
		}
		if args.Message == nil {
			return nil, fmt.Errorf("%w: message is required", ErrInvalidArgs)
		}
		svc.Chat(ctx, args.ModelName, *args.Message)
		return nil, nil
	}, WithDescription("Send one message to a model. The reply arrives on chat-message or chat-error"),
		WithArgs(&chatArgs{}), Async())

	r.Register(ollama.OpExecute, func(ctx context.Context, raw json.RawMessage) (any, error) {
		command, err := parseCommand(raw)
		if err != nil {
			return nil, err
		}
		svc.Execute(ctx, command)
		return nil, nil
	}, WithDescription("Run a command and publish its combined output when it exits"),
		WithArgs(&commandArgs{}), Async())
	r.Register(ollama.OpExecuteStreaming, func(ctx context.Context, raw json.RawMessage) (any, error) {
		command, err := parseCommand(raw)
		if err != nil {
			return nil, err
		}
		svc.ExecuteStreaming(ctx, command)
		return nil, nil
	}, WithDescription("Run a command and publish each output line as it arrives"),
		WithArgs(&commandArgs{}), Async())

	return r
}
