package dispatch

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/modeldeck/internal/events"
	"github.com/zjrosen/modeldeck/internal/ollama"
)

const fakeOllama = `#!/bin/sh
case "$1" in
  list) printf 'NAME ID SIZE MODIFIED\nllama3:latest 365c0bd3c000 4.7 GB 2 weeks ago\n' ;;
  pull) echo success ;;
  run) echo "hi from $2" ;;
  rm) echo deleted ;;
  show) echo "architecture llama" ;;
  --version) echo "ollama version is 0.5.7" ;;
esac
`

func newTestRegistry(t *testing.T) (*Registry, *ollama.Service, *events.Recorder) {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "ollama")
	require.NoError(t, os.WriteFile(bin, []byte(fakeOllama), 0o755))
	rec := events.NewRecorder()
	svc := ollama.New(rec, ollama.WithBinary(bin))
	return NewOllamaRegistry(svc), svc, rec
}

func TestNewOllamaRegistry_Names(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	require.ElementsMatch(t, []string{
		"list_models", "check_ollama_status", "pull_model", "run_model", "delete_model",
		"send_chat_message", "execute_terminal_command", "execute_terminal_command_streaming",
		"ollama_status", "show_model",
	}, r.Names())
}

func TestNewOllamaRegistry_AsyncFlags(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	var async []string
	for _, op := range r.Operations() {
		require.NotEmpty(t, op.Description, op.Name)
		if op.Async {
			async = append(async, op.Name)
		}
	}
	require.Equal(t, []string{
		"execute_terminal_command", "execute_terminal_command_streaming", "pull_model", "send_chat_message",
	}, async)

	list, _ := r.Describe("list_models")
	require.Nil(t, list.Args)
	chat, _ := r.Describe("send_chat_message")
	require.Contains(t, string(chat.Args), `"message"`)
}

func TestNewOllamaRegistry_SyncResults(t *testing.T) {
	r, _, rec := newTestRegistry(t)
	ctx := context.Background()

	got, err := r.Invoke(ctx, "list_models", nil)
	require.NoError(t, err)
	require.Equal(t, []ollama.Model{{Name: "llama3:latest", ID: "365c0bd3c000", Size: "4.7 GB", Modified: "2 weeks ago"}}, got)

	got, err = r.Invoke(ctx, "check_ollama_status", nil)
	require.NoError(t, err)
	require.Equal(t, true, got)

	got, err = r.Invoke(ctx, "run_model", json.RawMessage(`{"model_name":"llama3"}`))
	require.NoError(t, err)
	require.Equal(t, "Model llama3 is ready to run", got)

	got, err = r.Invoke(ctx, "delete_model", json.RawMessage(`{"model_name":"llama3"}`))
	require.NoError(t, err)
	require.Equal(t, "Model llama3 deleted successfully", got)

	got, err = r.Invoke(ctx, "show_model", json.RawMessage(`{"model_name":"llama3"}`))
	require.NoError(t, err)
	require.Equal(t, "architecture llama\n", got)

	got, err = r.Invoke(ctx, "ollama_status", nil)
	require.NoError(t, err)
	require.Equal(t, "0.5.7", got.(ollama.DetailedStatus).Version)

	require.Zero(t, rec.Len())
}

// TestNewOllamaRegistry_AsyncAcknowledges verifies async operations return a
// nil result and publish from the background.
func TestNewOllamaRegistry_AsyncAcknowledges(t *testing.T) {
	r, svc, rec := newTestRegistry(t)
	ctx := context.Background()

	for name, args := range map[string]string{
		"pull_model":                         `{"model_name":"llama3"}`,
		"send_chat_message":                  `{"model_name":"llama3","message":"hello"}`,
		"execute_terminal_command":           `{"command":"/bin/echo hi"}`,
		"execute_terminal_command_streaming": `{"command":"/bin/echo hi"}`,
	} {
		got, err := r.Invoke(ctx, name, json.RawMessage(args))
		require.NoError(t, err, name)
		require.Nil(t, got, name)
	}
	svc.Wait()

	require.Len(t, rec.OnChannel(events.ChannelChatMessage), 1)
	require.Len(t, rec.OnChannel(events.ChannelProgress), 2)
	require.NotEmpty(t, rec.OnChannel(events.ChannelOutput))
}

// TestNewOllamaRegistry_InvalidArgs verifies bad arguments never reach the service.
func TestNewOllamaRegistry_InvalidArgs(t *testing.T) {
	r, svc, rec := newTestRegistry(t)
	ctx := context.Background()

	cases := map[string]string{
		"pull_model":               `{}`,
		"run_model":                `{"model_name":"  "}`,
		"delete_model":             `not json`,
		"show_model":               `{"model_name":5}`,
		"send_chat_message":        `{"model_name":"llama3"}`,
		"execute_terminal_command": `{}`,
	}
	for name, args := range cases {
		_, err := r.Invoke(ctx, name, json.RawMessage(args))
		require.ErrorIs(t, err, ErrInvalidArgs, name)
	}
	svc.Wait()
	require.Zero(t, rec.Len())
}

func TestNewOllamaRegistry_BlankCommandIsAccepted(t *testing.T) {
	r, svc, rec := newTestRegistry(t)

	got, err := r.Invoke(context.Background(), "execute_terminal_command", json.RawMessage(`{"command":"   "}`))
	require.NoError(t, err)
	require.Nil(t, got)
	svc.Wait()
	require.Zero(t, rec.Len())
}
