package presentation

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/modeldeck/internal/events"
	"github.com/zjrosen/modeldeck/internal/history"
	"github.com/zjrosen/modeldeck/internal/ollama"
	"github.com/zjrosen/modeldeck/internal/tracing"
)

func TestFormatModelsTable(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)

	err := f.FormatModelsTable([]ollama.Model{
		{Name: "llama3:latest", ID: "365c0bd3c000", Size: "4.7 GB", Modified: "2 weeks ago"},
		{Name: "phi3", ID: "abc", Size: "2.2 GB", Modified: "now"},
	})

	require.NoError(t, err)
	require.Equal(t,
		"NAME            ID             SIZE     MODIFIED\n"+
			"llama3:latest   365c0bd3c000   4.7 GB   2 weeks ago\n"+
			"phi3            abc            2.2 GB   now\n",
		buf.String())
}

func TestFormatTraceSummary(t *testing.T) {
	var buf bytes.Buffer

	err := NewFormatter(&buf).FormatTraceSummary([]tracing.OpSummary{
		{Operation: "list_models", Count: 1, AvgMs: 5, MaxMs: 5},
		{Operation: "pull_model", Count: 2, Errors: 1, AvgMs: 200, MaxMs: 300},
	})

	require.NoError(t, err)
	require.Equal(t,
		"OPERATION     COUNT   ERRORS   AVG MS   MAX MS\n"+
			"list_models   1       0        5.0      5.0\n"+
			"pull_model    2       1        200.0    300.0\n",
		buf.String())
}

func TestFormatEventLine(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	err := f.FormatEventLine(FromEnvelope(events.Envelope{
		ID: "e1", Channel: events.ChannelChatError, Timestamp: ts, Payload: "Failed to get response: boom",
	}))

	require.NoError(t, err)
	require.JSONEq(t,
		`{"id":"e1","channel":"chat-error","timestamp":"2025-01-02T03:04:05+00:00","payload":"Failed to get response: boom"}`,
		buf.String())
	require.Equal(t, byte('\n'), buf.Bytes()[buf.Len()-1])
}

func TestFromStoredEvents_KeepsRawPayload(t *testing.T) {
	dtos := FromStoredEvents([]history.StoredEvent{
		{ID: "a", Channel: "output", Terminal: true, Payload: json.RawMessage(`{"output":"x","exit_code":0}`)},
	})

	data, err := json.Marshal(dtos)
	require.NoError(t, err)
	require.JSONEq(t,
		`[{"id":"a","channel":"output","timestamp":"0001-01-01T00:00:00+00:00","terminal":true,"payload":{"output":"x","exit_code":0}}]`,
		string(data))
}
