// Package log provides structured logging for modeldeck.
// Entries are leveled and categorized. They are written to one output (a debug
// file while the TUI owns the terminal, stderr for the server) and published to
// in-process listeners. Logging is a no-op until one of the Init functions runs.
package log

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-logfmt/logfmt"

	"github.com/zjrosen/modeldeck/internal/pubsub"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Category groups related log messages.
type Category string

const (
	CatProc    Category = "proc"    // External process spawn, output and exit
	CatEvents  Category = "events"  // Event bus publish/subscribe
	CatOps     Category = "ops"     // Command operations (list, pull, chat, ...)
	CatAPI     Category = "api"     // HTTP bridge and SSE streams
	CatConfig  Category = "config"  // Configuration loading/saving
	CatDB      Category = "db"      // History database
	CatCache   Category = "cache"   // cache operations
	CatWatcher Category = "watcher" // Models directory watcher
	CatUI      Category = "ui"      // Terminal UI updates
	CatTrace   Category = "trace"   // Tracing provider lifecycle
	CatMCP     Category = "mcp"     // MCP stdio server
)

// Entry is one published log record.
type Entry struct {
	Time     time.Time
	Level    Level
	Category Category
	Message  string
	// Line is the formatted text written to the log output.
	Line string
}

// Logger provides structured logging.
type Logger struct {
	mu       sync.Mutex
	writer   io.Writer
	minLevel Level
	broker   *pubsub.Broker[Entry]
}

var defaultLogger *Logger

// InitWithTeaLog writes to path through tea.LogToFile so that stray stdlib
// log output does not corrupt the TUI screen. Returns a cleanup function that
// closes the file.
func InitWithTeaLog(path string, prefix string) (func(), error) {
	f, err := tea.LogToFile(path, prefix)
	if err != nil {
		return nil, err
	}
	setDefault(f, LevelDebug)
	return func() { _ = f.Close() }, nil
}

// InitWriter routes entries at or above minLevel to w.
func InitWriter(w io.Writer, minLevel Level) {
	setDefault(w, minLevel)
}

func setDefault(w io.Writer, minLevel Level) {
	defaultLogger = &Logger{
		writer:   w,
		minLevel: minLevel,
		broker:   pubsub.NewBroker[Entry](),
	}
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) {
	log(LevelDebug, cat, msg, fields...)
}

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) {
	log(LevelInfo, cat, msg, fields...)
}

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) {
	log(LevelWarn, cat, msg, fields...)
}

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) {
	log(LevelError, cat, msg, fields...)
}

// ErrorErr logs an error with the error value.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "error", err.Error())
	} else {
		fields = append(fields, "error", "<nil>")
	}
	log(LevelError, cat, msg, fields...)
}

// format renders one entry. Fields are logfmt-encoded, so values with spaces
// are quoted.
// Format: 2025-12-06T10:45:00 [ERROR] [proc] message key=value key2="two words"
func format(now time.Time, level Level, cat Category, msg string, fields []any) string {
	var sb strings.Builder
	sb.WriteString(now.Format("2006-01-02T15:04:05"))
	fmt.Fprintf(&sb, " [%s] [%s] %s", level, cat, msg)

	if len(fields)%2 != 0 {
		fields = append(fields[:len(fields):len(fields)], "<missing>")
	}
	if len(fields) > 0 {
		sb.WriteByte(' ')
		if err := logfmt.NewEncoder(&sb).EncodeKeyvals(fields...); err != nil {
			fmt.Fprintf(&sb, " log_error=%q", err.Error())
		}
	}
	sb.WriteByte('\n')
	return sb.String()
}

func log(level Level, cat Category, msg string, fields ...any) {
	l := defaultLogger
	if l == nil || level < l.minLevel {
		return
	}

	now := time.Now()
	entry := Entry{
		Time:     now,
		Level:    level,
		Category: cat,
		Message:  msg,
		Line:     format(now, level, cat, msg, fields),
	}

	l.mu.Lock()
	_, _ = io.WriteString(l.writer, entry.Line)
	l.mu.Unlock()

	l.broker.Publish(pubsub.EventType(level.String()), entry)
}

// LogEvent is a pubsub event carrying a log entry.
type LogEvent = pubsub.Event[Entry]

// Listener keeps a log subscription alive across Bubble Tea update cycles.
type Listener = pubsub.ContinuousListener[Entry]

// NewListener subscribes to entries of the given levels, or all levels when
// none are given. Returns nil before the logger is initialized.
func NewListener(ctx context.Context, levels ...Level) *Listener {
	if defaultLogger == nil {
		return nil
	}
	types := make([]pubsub.EventType, 0, len(levels))
	for _, lv := range levels {
		types = append(types, pubsub.EventType(lv.String()))
	}
	return pubsub.NewContinuousListener(ctx, defaultLogger.broker, types...)
}
