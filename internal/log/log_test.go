package log

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormat_FieldsAndOrphanKey(t *testing.T) {
	now := time.Date(2025, 12, 6, 10, 45, 0, 0, time.UTC)

	line := format(now, LevelWarn, CatProc, "exited", []any{"pid", 42, "orphan"})

	require.Equal(t, "2025-12-06T10:45:00 [WARN] [proc] exited pid=42 orphan=<missing>\n", line)
}

func TestFormat_QuotesValues(t *testing.T) {
	now := time.Date(2025, 12, 6, 10, 45, 0, 0, time.UTC)

	line := format(now, LevelInfo, CatOps, "ran", []any{"command", "ollama ps", "err", errors.New(`exit "1"`), "took", 3 * time.Second})

	require.Equal(t, `2025-12-06T10:45:00 [INFO] [ops] ran command="ollama ps" err="exit \"1\"" took=3s`+"\n", line)
}

// TestInitWriter_RespectsMinLevel verifies entries below the minimum level are dropped.
func TestInitWriter_RespectsMinLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, LevelInfo)
	t.Cleanup(func() { defaultLogger = nil })

	Debug(CatOps, "hidden")
	Info(CatOps, "shown", "model", "llama3")
	ErrorErr(CatOps, "failed", errors.New("boom"))

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "[INFO] [ops] shown model=llama3")
	require.Contains(t, out, "[ERROR] [ops] failed error=boom")
}

// TestNewListener_FiltersByLevel verifies listeners only see the levels they asked for.
func TestNewListener_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, LevelDebug)
	t.Cleanup(func() { defaultLogger = nil })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := NewListener(ctx, LevelWarn, LevelError)
	require.NotNil(t, listener)

	Info(CatEvents, "not for the listener")
	Warn(CatWatcher, "models dir missing", "dir", "/x")

	msg := listener.Listen()()
	event, ok := msg.(LogEvent)
	require.True(t, ok)
	require.Equal(t, LevelWarn, event.Payload.Level)
	require.Equal(t, CatWatcher, event.Payload.Category)
	require.Equal(t, "models dir missing", event.Payload.Message)
	require.True(t, strings.HasSuffix(event.Payload.Line, "[WARN] [watcher] models dir missing dir=/x\n"))
	require.Contains(t, buf.String(), "not for the listener")
}

func TestNewListener_NilBeforeInit(t *testing.T) {
	defaultLogger = nil
	require.Nil(t, NewListener(context.Background()))

	// Logging without a logger is a no-op.
	Error(CatAPI, "dropped")
}
