package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zjrosen/modeldeck/internal/log"
)

// wsWriteWait bounds a single frame write to a WebSocket client.
const wsWriteWait = 10 * time.Second

// StreamEventsWS streams envelopes as JSON text frames over a WebSocket,
// optionally filtered by ?channel=. Pings are sent every heartbeat interval.
// Messages from the client are read and discarded.
// GET /ws
func (h *Handler) StreamEventsWS(w http.ResponseWriter, r *http.Request) {
	channels, ok := h.channelFilter(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Subscribe before the handshake completes so a client that has
	// connected sees everything emitted afterwards.
	sub := h.events.Subscribe(ctx, channels...)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		log.Warn(log.CatAPI, "WebSocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()
	log.Debug(log.CatAPI, "WebSocket client connected", "channels", channels)

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug(log.CatAPI, "WebSocket read failed", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
			log.Debug(log.CatAPI, "WebSocket client disconnected")
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case event, ok := <-sub:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event.Payload); err != nil {
				log.Debug(log.CatAPI, "WebSocket write failed", "error", err, "channel", event.Payload.Channel)
				return
			}
		}
	}
}
