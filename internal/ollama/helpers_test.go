package ollama

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/modeldeck/internal/events"
)

// writeScript writes an executable /bin/sh script and returns its path.
func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// fakeOllama is a stand-in for the ollama CLI covering every subcommand the
// service uses. Model "bad" fails, and `show` appends a line to $CALLS_FILE.
const fakeOllama = `
case "$1" in
  --version)
    echo "ollama version is 0.5.7"
    ;;
  list)
    printf 'NAME              ID              SIZE      MODIFIED\n'
    printf 'llama3:latest     365c0bd3c000    4.7 GB    2 weeks ago\n'
    printf '\n'
    printf 'broken row\n'
    printf 'mistral:7b        f974a74358d6    4.1 GB    3 days ago\n'
    ;;
  pull)
    if [ "$2" = "bad" ]; then
      echo "pulling manifest"
      echo "Error: pull model manifest: file does not exist" >&2
      exit 1
    fi
    echo "pulling manifest"
    echo "success"
    ;;
  run)
    if [ "$2" = "bad" ]; then
      echo "Error: model 'bad' not found" >&2
      exit 1
    fi
    if [ "$3" = "--help" ]; then
      echo "Run a model"
      exit 0
    fi
    echo "reply to: $3"
    ;;
  rm)
    if [ "$2" = "bad" ]; then
      echo "Error: model 'bad' not found" >&2
      exit 1
    fi
    echo "deleted '$2'"
    ;;
  show)
    if [ -n "$CALLS_FILE" ]; then echo show >> "$CALLS_FILE"; fi
    if [ "$2" = "bad" ]; then
      echo "Error: model 'bad' not found" >&2
      exit 1
    fi
    echo "  Model"
    echo "    architecture    llama"
    ;;
  *)
    echo "unknown command $1" >&2
    exit 2
    ;;
esac
`

// newTestService returns a service using the fake CLI and a recording emitter.
func newTestService(t *testing.T, opts ...Option) (*Service, *events.Recorder) {
	t.Helper()
	rec := events.NewRecorder()
	opts = append([]Option{WithBinary(writeScript(t, "ollama", fakeOllama))}, opts...)
	return New(rec, opts...), rec
}

func missingBinary(t *testing.T) string {
	return filepath.Join(t.TempDir(), "no-such-ollama")
}

func progressEvents(t *testing.T, rec *events.Recorder) []events.ProgressEvent {
	t.Helper()
	var out []events.ProgressEvent
	for _, p := range rec.OnChannel(events.ChannelProgress) {
		ev, ok := p.(events.ProgressEvent)
		require.True(t, ok, "progress payload has type %T", p)
		out = append(out, ev)
	}
	return out
}

func outputEvents(t *testing.T, rec *events.Recorder) []events.TerminalOutputEvent {
	t.Helper()
	var out []events.TerminalOutputEvent
	for _, p := range rec.OnChannel(events.ChannelOutput) {
		ev, ok := p.(events.TerminalOutputEvent)
		require.True(t, ok, "output payload has type %T", p)
		out = append(out, ev)
	}
	return out
}
