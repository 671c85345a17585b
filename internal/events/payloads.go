package events

import (
	"time"
)

// Progress statuses.
const (
	StatusStarting    = "starting"
	StatusDownloading = "downloading"
	StatusSuccess     = "success"
	StatusFailed      = "failed"
)

// timestampLayout is RFC 3339 with an explicit numeric offset ("+00:00", never "Z").
const timestampLayout = "2006-01-02T15:04:05.999999999-07:00"

var now = time.Now

// Timestamp returns the current time in UTC, ISO-8601 formatted.
func Timestamp() string {
	return FormatTime(now())
}

// FormatTime formats t in UTC the way every event timestamp is written.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ProgressEvent reports a model fetch. Exactly one event per fetch has
// Completed set; it carries Error if and only if the fetch failed.
type ProgressEvent struct {
	Model     string   `json:"model"`
	Status    string   `json:"status"`
	Progress  *float64 `json:"progress"`
	Completed bool     `json:"completed"`
	Error     *string  `json:"error"`
}

// IsTerminal reports whether this is the final event of a fetch.
func (p ProgressEvent) IsTerminal() bool { return p.Completed }

func percent(v float64) *float64 { return &v }

// Starting is the first event of a fetch.
func Starting(model string) ProgressEvent {
	return ProgressEvent{Model: model, Status: StatusStarting, Progress: percent(0)}
}

// Downloading is a non-terminal event carrying a parsed percentage.
func Downloading(model string, pct float64) ProgressEvent {
	return ProgressEvent{Model: model, Status: StatusDownloading, Progress: percent(pct)}
}

// Succeeded is the terminal event of a successful fetch.
func Succeeded(model string) ProgressEvent {
	return ProgressEvent{Model: model, Status: StatusSuccess, Progress: percent(100), Completed: true}
}

// Failed is the terminal event of a failed fetch.
func Failed(model, reason string) ProgressEvent {
	return ProgressEvent{Model: model, Status: StatusFailed, Progress: percent(0), Completed: true, Error: &reason}
}

// TerminalOutputEvent is a chunk of command output. ExitCode is set only on
// the final event of an invocation.
type TerminalOutputEvent struct {
	Command   string `json:"command"`
	Output    string `json:"output"`
	Timestamp string `json:"timestamp"`
	ExitCode  *int   `json:"exit_code"`
}

// IsTerminal reports whether this event closes its invocation.
func (o TerminalOutputEvent) IsTerminal() bool { return o.ExitCode != nil }

// Output builds a non-terminal output event.
func Output(command, text string) TerminalOutputEvent {
	return TerminalOutputEvent{Command: command, Output: text, Timestamp: Timestamp()}
}

// OutputWithExit builds the final output event of an invocation.
func OutputWithExit(command, text string, exitCode int) TerminalOutputEvent {
	ev := Output(command, text)
	ev.ExitCode = &exitCode
	return ev
}

// Echo is the "$ command" line shown before a command's output.
func Echo(command string) TerminalOutputEvent {
	return Output(command, "$ "+command)
}

// ChatMessageEvent is a chat reply.
type ChatMessageEvent struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RoleAssistant is the role of replies produced by the model.
const RoleAssistant = "assistant"

// ModelsChangedEvent reports that the local model store was modified outside the app.
type ModelsChangedEvent struct {
	Path      string `json:"path"`
	Timestamp string `json:"timestamp"`
}
