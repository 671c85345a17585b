package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/modeldeck/internal/events"
)

func dialWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHandler_StreamEventsWS(t *testing.T) {
	bus := events.NewBus(16)
	t.Cleanup(bus.Close)
	h := newTestHandler(t, HandlerConfig{Events: bus})
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	conn := dialWS(t, srv, "?channel=progress")

	bus.Emit(events.ChannelOutput, events.Echo("ls"))
	bus.Emit(events.ChannelProgress, events.Succeeded("llama3"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env struct {
		ID      string               `json:"id"`
		Channel string               `json:"channel"`
		Payload events.ProgressEvent `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&env))
	require.NotEmpty(t, env.ID)
	require.Equal(t, events.ChannelProgress, env.Channel)
	require.Equal(t, "llama3", env.Payload.Model)
	require.True(t, env.Payload.Completed)
}

func TestHandler_StreamEventsWS_AllChannels(t *testing.T) {
	bus := events.NewBus(16)
	t.Cleanup(bus.Close)
	h := newTestHandler(t, HandlerConfig{Events: bus, Heartbeat: 10 * time.Millisecond})
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	conn := dialWS(t, srv, "")
	bus.Emit(events.ChannelChatError, "Failed to get response: boom")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	require.Equal(t, events.ChannelChatError, env["channel"])
	require.Equal(t, "Failed to get response: boom", env["payload"])
}

func TestHandler_StreamEventsWS_InvalidChannel(t *testing.T) {
	h := newTestHandler(t, HandlerConfig{})

	w := serve(h, http.MethodGet, "/ws?channel=nope", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_channel", decodeError(t, w).Code)
}

func TestHandler_StreamEventsWS_RequiresUpgrade(t *testing.T) {
	h := newTestHandler(t, HandlerConfig{})

	w := serve(h, http.MethodGet, "/ws", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}
