// Package api provides the local HTTP bridge used by UI clients.
// It exposes operation invocation over REST and the event bus over SSE and
// WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/modeldeck/internal/dispatch"
	"github.com/zjrosen/modeldeck/internal/events"
	"github.com/zjrosen/modeldeck/internal/history"
	"github.com/zjrosen/modeldeck/internal/log"
	"github.com/zjrosen/modeldeck/internal/ollama"
	"github.com/zjrosen/modeldeck/internal/pubsub"
)

// maxBodyBytes bounds an invoke request body.
const maxBodyBytes = 1 << 20

// DefaultHeartbeat is the SSE keep-alive interval.
const DefaultHeartbeat = 30 * time.Second

// Invoker runs named operations (dispatch.Registry).
type Invoker interface {
	Invoke(ctx context.Context, name string, args json.RawMessage) (any, error)
	Operations() []dispatch.Operation
	Describe(name string) (dispatch.Operation, bool)
}

// EventSource is subscribed to by SSE clients (events.Bus).
type EventSource interface {
	Subscribe(ctx context.Context, channels ...string) <-chan pubsub.Event[events.Envelope]
}

// HistoryReader serves persisted events (history.Store).
type HistoryReader interface {
	Recent(ctx context.Context, q history.Query) ([]history.StoredEvent, error)
}

// StatusProber reports the state of the ollama CLI (ollama.Service).
type StatusProber interface {
	Status(ctx context.Context) ollama.DetailedStatus
}

// Handler provides the HTTP endpoints.
type Handler struct {
	invoker   Invoker
	events    EventSource
	history   HistoryReader
	status    StatusProber
	heartbeat time.Duration
	upgrader  websocket.Upgrader
	tracing   trace.TracerProvider
}

// HandlerConfig configures the API handler.
type HandlerConfig struct {
	// Invoker runs operations (required).
	Invoker Invoker
	// Events feeds GET /events (required).
	Events EventSource
	// History serves GET /history. If nil the endpoint reports history as disabled.
	History HistoryReader
	// Status is probed by GET /health (optional).
	Status StatusProber
	// Heartbeat overrides DefaultHeartbeat.
	Heartbeat time.Duration
	// TracerProvider receives request spans. Defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// NewHandler creates a new API handler.
func NewHandler(cfg HandlerConfig) *Handler {
	heartbeat := cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Handler{
		invoker:   cfg.Invoker,
		events:    cfg.Events,
		history:   cfg.History,
		status:    cfg.Status,
		heartbeat: heartbeat,
		tracing:   cfg.TracerProvider,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The bridge binds to loopback; local UI clients come from any origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Routes returns an http.Handler with all API routes registered. Requests
// other than health probes are traced.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// Operations
	mux.HandleFunc("POST /invoke/{name}", h.Invoke)
	mux.HandleFunc("GET /operations", h.Operations)
	mux.HandleFunc("GET /operations/{name}", h.Operation)

	// Events
	mux.HandleFunc("GET /events", h.StreamEvents)
	mux.HandleFunc("GET /ws", h.StreamEventsWS)
	mux.HandleFunc("GET /history", h.History)

	mux.HandleFunc("GET /health", h.Health)

	opts := []otelhttp.Option{
		otelhttp.WithFilter(func(r *http.Request) bool { return r.URL.Path != "/health" }),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	}
	if h.tracing != nil {
		opts = append(opts, otelhttp.WithTracerProvider(h.tracing))
	}
	return otelhttp.NewHandler(mux, "modeldeck.api", opts...)
}

// === Request/Response Types ===

// InvokeResponse is the response body for a successful invocation.
// Result is null for operations that report through events.
type InvokeResponse struct {
	Result any `json:"result"`
}

// OperationsResponse lists invocable operations. Details carries the
// description and argument schema of each, in the same order as Operations.
type OperationsResponse struct {
	Operations []string             `json:"operations"`
	Details    []dispatch.Operation `json:"details"`
	Total      int                  `json:"total"`
}

// HistoryResponse is the response body for GET /history.
type HistoryResponse struct {
	Events []history.StoredEvent `json:"events"`
	Total  int                   `json:"total"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string        `json:"status"`
	Ollama *OllamaHealth `json:"ollama,omitempty"`
}

// OllamaHealth summarizes the ollama CLI.
type OllamaHealth struct {
	Running bool   `json:"running"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorResponse is the response body for errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// === Handlers ===

// Invoke runs one operation with the JSON request body as its arguments.
// POST /invoke/{name}
func (h *Handler) Invoke(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "Request body too large", err.Error())
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", "")
		return
	}

	result, err := h.invoker.Invoke(r.Context(), name, body)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, InvokeResponse{Result: result})
	case errors.Is(err, dispatch.ErrUnknownOperation):
		h.writeError(w, http.StatusNotFound, "unknown_operation", "Unknown operation", name)
	case errors.Is(err, dispatch.ErrInvalidArgs):
		h.writeError(w, http.StatusBadRequest, "invalid_args", "Invalid arguments", err.Error())
	default:
		log.Warn(log.CatAPI, "Operation failed", "name", name, "error", err)
		h.writeError(w, http.StatusInternalServerError, "operation_failed", "Operation failed", err.Error())
	}
}

// Operations lists the registered operations.
// GET /operations
func (h *Handler) Operations(w http.ResponseWriter, _ *http.Request) {
	ops := h.invoker.Operations()
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.Name
	}
	h.writeJSON(w, http.StatusOK, OperationsResponse{Operations: names, Details: ops, Total: len(ops)})
}

// Operation describes one operation.
// GET /operations/{name}
func (h *Handler) Operation(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	op, ok := h.invoker.Describe(name)
	if !ok {
		h.writeError(w, http.StatusNotFound, "unknown_operation", "Unknown operation", name)
		return
	}
	h.writeJSON(w, http.StatusOK, op)
}

// StreamEvents streams envelopes as SSE, optionally filtered by ?channel=.
// GET /events
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	channels, ok := h.channelFilter(w, r)
	if !ok {
		return
	}

	// Subscribe before the connected frame so nothing published after it is missed.
	sub := h.events.Subscribe(r.Context(), channels...)
	log.Debug(log.CatAPI, "SSE client connected", "channels", channels)
	h.streamEvents(w, r, sub)
	log.Debug(log.CatAPI, "SSE client disconnected")
}

// History returns recently persisted events.
// GET /history?channel=&limit=&terminal=
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusServiceUnavailable, "history_disabled", "Event history is disabled", "")
		return
	}

	q := history.Query{Channel: r.URL.Query().Get("channel")}
	if q.Channel != "" && !slices.Contains(events.Channels, q.Channel) {
		h.writeError(w, http.StatusBadRequest, "invalid_channel", "Unknown channel", q.Channel)
		return
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			h.writeError(w, http.StatusBadRequest, "validation_error", "limit must be a non-negative integer", v)
			return
		}
		q.Limit = limit
	}
	q.TerminalOnly = r.URL.Query().Get("terminal") == "true"

	stored, err := h.history.Recent(r.Context(), q)
	if err != nil {
		log.ErrorErr(log.CatAPI, "Failed to read history", err)
		h.writeError(w, http.StatusInternalServerError, "history_failed", "Failed to read history", err.Error())
		return
	}
	if stored == nil {
		stored = []history.StoredEvent{}
	}
	h.writeJSON(w, http.StatusOK, HistoryResponse{Events: stored, Total: len(stored)})
}

// Health returns the bridge status and, when available, the ollama CLI status.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if h.status != nil {
		st := h.status.Status(r.Context())
		resp.Ollama = &OllamaHealth{Running: st.Running, Version: st.Version, Error: st.Error}
		if !st.Running {
			resp.Status = "degraded"
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// === Helpers ===

// channelFilter validates the repeated ?channel= parameter. It writes a 400
// and reports false when any channel is unknown.
func (h *Handler) channelFilter(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	channels := r.URL.Query()["channel"]
	for _, c := range channels {
		if !slices.Contains(events.Channels, c) {
			h.writeError(w, http.StatusBadRequest, "invalid_channel", "Unknown channel", c)
			return nil, false
		}
	}
	return channels, true
}

func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request, sub <-chan pubsub.Event[events.Envelope]) {
	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming not supported", "")
		return
	}

	_, _ = fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case event, ok := <-sub:
			if !ok {
				return
			}

			env := event.Payload
			data, err := json.Marshal(env)
			if err != nil {
				log.ErrorErr(log.CatAPI, "Failed to marshal event", err, "channel", env.Channel)
				continue
			}

			_, _ = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", env.ID, env.Channel, data)
			flusher.Flush()
		}
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.ErrorErr(log.CatAPI, "Failed to encode JSON response", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message, details string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// Server wraps the Handler with an http.Server for lifecycle management.
type Server struct {
	handler  *Handler
	server   *http.Server
	listener net.Listener
	addr     string
	port     int // Actual port after binding (useful when using :0)

	// cancel ends request contexts so open SSE streams return on Stop.
	cancel context.CancelFunc
}

// ServerConfig configures the API server.
type ServerConfig struct {
	// Addr is the address to listen on (e.g., "127.0.0.1:7878").
	Addr string
	// Handler configures the routes.
	Handler HandlerConfig
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration
}

// NewServer creates a new API server and binds its listener.
// If Addr uses port 0 the OS assigns one; see Port.
func NewServer(cfg ServerConfig) (*Server, error) {
	handler := NewHandler(cfg.Handler)

	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}

	baseCtx, cancel := context.WithCancel(context.Background())

	port := 0
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}

	return &Server{
		handler:  handler,
		addr:     cfg.Addr,
		port:     port,
		listener: listener,
		cancel:   cancel,
		server: &http.Server{
			Handler:           handler.Routes(),
			BaseContext:       func(net.Listener) context.Context { return baseCtx },
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			// No write timeout: SSE and WebSocket responses are long-lived.
		},
	}, nil
}

// Start serves until the server is stopped. It returns nil after Stop.
func (s *Server) Start() error {
	log.Info(log.CatAPI, "Starting API server", "addr", s.listener.Addr().String(), "port", s.port)
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	log.Info(log.CatAPI, "Stopping API server")
	s.cancel()
	return s.server.Shutdown(ctx)
}

// Port returns the actual port the server is listening on.
func (s *Server) Port() int {
	return s.port
}
