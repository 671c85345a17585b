package tracing

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Record statuses.
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
	StatusUnset = "UNSET"
)

// FileExporter appends one JSON line per finished span.
type FileExporter struct {
	mu  sync.Mutex
	w   *bufio.Writer
	out *os.File
}

// NewFileExporter opens path for appending, creating it and its parent
// directories as needed.
func NewFileExporter(path string) (*FileExporter, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create trace directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) // #nosec G304 -- path is cleaned above
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return &FileExporter{w: bufio.NewWriter(f), out: f}, nil
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *FileExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.out == nil || len(spans) == 0 {
		return nil
	}

	enc := json.NewEncoder(e.w)
	for _, span := range spans {
		if err := enc.Encode(newRecord(span)); err != nil {
			return fmt.Errorf("encode span: %w", err)
		}
	}
	return e.w.Flush()
}

// Shutdown flushes and closes the file. Safe to call more than once.
func (e *FileExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.out == nil {
		return nil
	}
	flushErr := e.w.Flush()
	closeErr := e.out.Close()
	e.out = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// SpanRecord is one exported span. The operation, model and exit code are
// lifted out of the attributes so records can be summarized without knowing
// attribute keys.
type SpanRecord struct {
	TraceID    string         `json:"trace_id"`
	SpanID     string         `json:"span_id"`
	ParentID   string         `json:"parent_span_id,omitempty"`
	Name       string         `json:"name"`
	Operation  string         `json:"operation,omitempty"`
	Model      string         `json:"model,omitempty"`
	ExitCode   *int           `json:"exit_code,omitempty"`
	Start      time.Time      `json:"start_time"`
	DurationMs float64        `json:"duration_ms"`
	Status     string         `json:"status"`
	Error      string         `json:"error,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Events     []string       `json:"events,omitempty"`
}

func newRecord(span sdktrace.ReadOnlySpan) SpanRecord {
	sc := span.SpanContext()
	rec := SpanRecord{
		TraceID:    sc.TraceID().String(),
		SpanID:     sc.SpanID().String(),
		Name:       span.Name(),
		Start:      span.StartTime().UTC(),
		DurationMs: float64(span.EndTime().Sub(span.StartTime()).Microseconds()) / 1000,
		Status:     StatusUnset,
	}
	if span.Parent().IsValid() {
		rec.ParentID = span.Parent().SpanID().String()
	}

	switch st := span.Status(); st.Code {
	case codes.Ok:
		rec.Status = StatusOK
	case codes.Error:
		rec.Status = StatusError
		rec.Error = st.Description
	}

	rest := make(map[string]any)
	for _, kv := range span.Attributes() {
		switch kv.Key {
		case AttrOperation:
			rec.Operation = kv.Value.AsString()
		case AttrModel:
			rec.Model = kv.Value.AsString()
		case AttrExitCode:
			code := int(kv.Value.AsInt64())
			rec.ExitCode = &code
		default:
			rest[string(kv.Key)] = kv.Value.AsInterface()
		}
	}
	if len(rest) > 0 {
		rec.Attributes = rest
	}

	for _, ev := range span.Events() {
		rec.Events = append(rec.Events, ev.Name)
	}
	return rec
}

// ReadRecords parses a trace file written by FileExporter.
func ReadRecords(path string) ([]SpanRecord, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var records []SpanRecord
	dec := json.NewDecoder(f)
	for dec.More() {
		var rec SpanRecord
		if err := dec.Decode(&rec); err != nil {
			return records, fmt.Errorf("decode span %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// OpSummary aggregates the spans of one operation.
type OpSummary struct {
	Operation string  `json:"operation"`
	Count     int     `json:"count"`
	Errors    int     `json:"errors"`
	AvgMs     float64 `json:"avg_ms"`
	MaxMs     float64 `json:"max_ms"`
}

// Summarize groups operation spans by name, sorted by operation. Spans
// without an operation are skipped.
func Summarize(records []SpanRecord) []OpSummary {
	byOp := make(map[string]*OpSummary)
	for _, r := range records {
		if r.Operation == "" {
			continue
		}
		s, ok := byOp[r.Operation]
		if !ok {
			s = &OpSummary{Operation: r.Operation}
			byOp[r.Operation] = s
		}
		s.Count++
		if r.Status == StatusError {
			s.Errors++
		}
		s.AvgMs += r.DurationMs
		s.MaxMs = max(s.MaxMs, r.DurationMs)
	}

	out := make([]OpSummary, 0, len(byOp))
	for _, s := range byOp {
		s.AvgMs /= float64(s.Count)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}
