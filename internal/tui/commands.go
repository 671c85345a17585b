package tui

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/zjrosen/modeldeck/internal/ollama"
)

// ErrUsage is returned by ParseInput for malformed slash commands.
var ErrUsage = errors.New("usage")

// Request is one operation to invoke.
type Request struct {
	Op   string
	Args json.RawMessage
}

type modelArgs struct {
	ModelName string `json:"model_name"`
}

type chatArgs struct {
	ModelName string `json:"model_name"`
	Message   string `json:"message"`
}

type commandArgs struct {
	Command string `json:"command"`
}

func request(op string, args any) Request {
	data, _ := json.Marshal(args)
	return Request{Op: op, Args: data}
}

// helpText lists the input commands.
const helpText = `/list              list installed models
/pull <model>      download a model
/rm <model>        delete a model
/run <model>       check a model can run
/show <model>      show model details
/chat <model> ...  send a chat message
/status            show ollama version
/stream <cmd>      run a command, streaming its output
/help              show this help
<cmd>              run a command`

var commandNames = []string{"/list", "/pull", "/rm", "/run", "/show", "/chat", "/status", "/stream", "/help"}

// unknownCommand reports name, suggesting the closest known command.
func unknownCommand(name string) error {
	ranks := fuzzy.RankFindFold(name, commandNames)
	if len(ranks) == 0 {
		return fmt.Errorf("unknown command %s (try /help)", name)
	}
	sort.Sort(ranks)
	return fmt.Errorf("unknown command %s (did you mean %s?)", name, ranks[0].Target)
}

// ParseInput maps one input line to an operation. Lines that do not start
// with "/" run as ad-hoc commands. ok is false for blank input and /help.
func ParseInput(line string) (req Request, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Request{}, false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return request(ollama.OpExecute, commandArgs{Command: line}), true, nil
	}

	fields := strings.Fields(line)
	name, rest := fields[0], fields[1:]

	needModel := func(op string) (Request, bool, error) {
		if len(rest) != 1 {
			return Request{}, false, fmt.Errorf("%w: %s <model>", ErrUsage, name)
		}
		return request(op, modelArgs{ModelName: rest[0]}), true, nil
	}

	switch name {
	case "/help":
		return Request{}, false, nil
	case "/list":
		return Request{Op: ollama.OpListModels}, true, nil
	case "/status":
		return Request{Op: ollama.OpStatus}, true, nil
	case "/pull":
		return needModel(ollama.OpPullModel)
	case "/rm":
		return needModel(ollama.OpDeleteModel)
	case "/run":
		return needModel(ollama.OpRunModel)
	case "/show":
		return needModel(ollama.OpShowModel)
	case "/chat":
		if len(rest) < 2 {
			return Request{}, false, fmt.Errorf("%w: /chat <model> <message>", ErrUsage)
		}
		// Keep the message as typed, minus the command and model name.
		msg := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(strings.TrimPrefix(line, name)), rest[0]))
		return request(ollama.OpChat, chatArgs{ModelName: rest[0], Message: msg}), true, nil
	case "/stream":
		if len(rest) == 0 {
			return Request{}, false, fmt.Errorf("%w: /stream <command>", ErrUsage)
		}
		return request(ollama.OpExecuteStreaming, commandArgs{Command: strings.Join(rest, " ")}), true, nil
	default:
		return Request{}, false, unknownCommand(name)
	}
}
