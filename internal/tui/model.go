// Package tui is a terminal client for modeldeck. It subscribes to the event
// bus like any other UI and invokes operations through the dispatch registry.
package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"

	"github.com/zjrosen/modeldeck/internal/events"
	"github.com/zjrosen/modeldeck/internal/keys"
	"github.com/zjrosen/modeldeck/internal/log"
	"github.com/zjrosen/modeldeck/internal/ollama"
	"github.com/zjrosen/modeldeck/internal/pubsub"
)

const (
	// maxLines bounds the scrollback.
	maxLines = 2000
	// maxRecall bounds the submitted-input history.
	maxRecall = 100
)

// Invoker runs named operations (dispatch.Registry).
type Invoker interface {
	Invoke(ctx context.Context, name string, args json.RawMessage) (any, error)
}

// Config configures the TUI.
type Config struct {
	Invoker       Invoker
	Broker        *pubsub.Broker[events.Envelope]
	MarkdownStyle string
	// Logs, when set, surfaces log entries in the scrollback.
	Logs *log.Listener
}

// resultMsg carries the outcome of an invocation.
type resultMsg struct {
	req    Request
	result any
	err    error
}

// Model is the root Bubble Tea model.
type Model struct {
	ctx      context.Context
	invoker  Invoker
	listener *pubsub.ContinuousListener[events.Envelope]
	logs     *log.Listener
	style    string
	renderer *markdownRenderer

	keys     keys.KeyMap
	help     help.Model
	input    textinput.Model
	viewport viewport.Model
	lines    []string
	recall   []string
	recallAt int
	progress map[string]events.ProgressEvent
	width    int
	height   int
	ready    bool
}

// New creates the model. The bus subscription lives until ctx is cancelled.
func New(ctx context.Context, cfg Config) Model {
	input := textinput.New()
	input.Placeholder = "/help for commands, anything else runs in a shell"
	input.Prompt = "> "
	input.Focus()

	return Model{
		ctx:      ctx,
		invoker:  cfg.Invoker,
		listener: pubsub.NewContinuousListener(ctx, cfg.Broker),
		logs:     cfg.Logs,
		style:    cfg.MarkdownStyle,
		keys:     keys.DefaultKeyMap(),
		help:     help.New(),
		input:    input,
		progress: make(map[string]events.ProgressEvent),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.listener.Listen()}
	if m.logs != nil {
		cmds = append(cmds, m.logs.Listen())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Submit):
			line := m.input.Value()
			m.input.Reset()
			m.remember(line)
			return m, m.submit(line)
		case key.Matches(msg, m.keys.HistoryPrev):
			m.recallStep(-1)
			return m, nil
		case key.Matches(msg, m.keys.HistoryNext):
			m.recallStep(1)
			return m, nil
		case key.Matches(msg, m.keys.ScrollUp):
			m.viewport.HalfPageUp()
			return m, nil
		case key.Matches(msg, m.keys.ScrollDown):
			m.viewport.HalfPageDown()
			return m, nil
		case key.Matches(msg, m.keys.Clear):
			m.lines = nil
			m.refresh()
			return m, nil
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			m.resize(m.width, m.height)
			return m, nil
		}

	case pubsub.Event[events.Envelope]:
		m.handleEnvelope(msg.Payload)
		return m, m.listener.Listen()

	case log.LogEvent:
		m.appendLines(logStyle.Render(fmt.Sprintf("[%s] %s", strings.ToLower(msg.Payload.Level.String()), msg.Payload.Message)))
		if m.logs == nil {
			return m, nil
		}
		return m, m.logs.Listen()

	case resultMsg:
		m.handleResult(msg)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	vpHeight := max(height-4-m.helpHeight(), 1)
	if !m.ready {
		m.viewport = viewport.New(width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}
	m.input.Width = max(width-4, 10)
	m.help.Width = width

	if r, err := newMarkdownRenderer(m.style, max(width-2, 20)); err == nil {
		m.renderer = r
	} else {
		log.ErrorErr(log.CatUI, "Failed to create markdown renderer", err)
	}
	m.refresh()
}

func (m Model) helpHeight() int {
	if !m.help.ShowAll {
		return 1
	}
	rows := 0
	for _, col := range m.keys.FullHelp() {
		rows = max(rows, len(col))
	}
	return rows
}

// remember appends a non-blank line to the recall history unless it repeats
// the previous entry.
func (m *Model) remember(line string) {
	if strings.TrimSpace(line) != "" && (len(m.recall) == 0 || m.recall[len(m.recall)-1] != line) {
		m.recall = append(m.recall, line)
		if over := len(m.recall) - maxRecall; over > 0 {
			m.recall = m.recall[over:]
		}
	}
	m.recallAt = len(m.recall)
}

// recallStep moves through submitted inputs. Stepping past the newest entry
// clears the prompt.
func (m *Model) recallStep(delta int) {
	if len(m.recall) == 0 {
		return
	}
	m.recallAt = min(max(m.recallAt+delta, 0), len(m.recall))
	if m.recallAt == len(m.recall) {
		m.input.Reset()
		return
	}
	m.input.SetValue(m.recall[m.recallAt])
	m.input.CursorEnd()
}

// submit parses line and returns a command that invokes the operation.
func (m *Model) submit(line string) tea.Cmd {
	req, ok, err := ParseInput(line)
	if err != nil {
		m.appendLines(errorStyle.Render(err.Error()))
		return nil
	}
	if !ok {
		if strings.TrimSpace(line) != "" {
			m.appendLines(strings.Split(helpText, "\n")...)
		}
		return nil
	}

	log.Debug(log.CatUI, "Invoking", "op", req.Op)
	ctx, invoker := m.ctx, m.invoker
	return func() tea.Msg {
		result, err := invoker.Invoke(ctx, req.Op, req.Args)
		return resultMsg{req: req, result: result, err: err}
	}
}

func (m *Model) handleResult(msg resultMsg) {
	if msg.err != nil {
		m.appendLines(errorStyle.Render(msg.err.Error()))
		return
	}

	switch v := msg.result.(type) {
	case nil:
		// Async operations report through events.
	case []ollama.Model:
		m.appendLines(formatModels(v)...)
	case ollama.DetailedStatus:
		if v.Running {
			m.appendLines(fmt.Sprintf("ollama %s (%dms)", v.Version, v.ResponseTimeMs))
		} else {
			m.appendLines(errorStyle.Render("ollama unavailable: " + v.Error))
		}
	case bool:
		if v {
			m.appendLines("ollama is available")
		} else {
			m.appendLines(errorStyle.Render("ollama is not available"))
		}
	case string:
		m.appendLines(strings.Split(strings.TrimRight(v, "\n"), "\n")...)
	default:
		m.appendLines(fmt.Sprintf("%v", v))
	}
}

func formatModels(models []ollama.Model) []string {
	if len(models) == 0 {
		return []string{dimStyle.Render("no models installed")}
	}
	row := func(name, id, size, modified string) string {
		return runewidth.FillRight(runewidth.Truncate(name, 32, "…"), 33) +
			runewidth.FillRight(id, 15) + runewidth.FillRight(size, 11) + modified
	}
	lines := []string{headerStyle.Render(row("NAME", "ID", "SIZE", "MODIFIED"))}
	for _, md := range models {
		lines = append(lines, row(md.Name, md.ID, md.Size, md.Modified))
	}
	return lines
}

// wrap splits text into lines no wider than the viewport.
func (m *Model) wrap(text string) []string {
	if m.width > 0 {
		text = wordwrap.String(text, max(m.width-1, 10))
	}
	return strings.Split(text, "\n")
}

func (m *Model) handleEnvelope(env events.Envelope) {
	switch p := env.Payload.(type) {
	case events.TerminalOutputEvent:
		if text := strings.TrimRight(p.Output, "\n"); text != "" {
			if strings.HasPrefix(text, "$ ") && p.ExitCode == nil {
				m.appendLines(commandStyle.Render(text))
			} else {
				m.appendLines(m.wrap(text)...)
			}
		}
		if p.ExitCode != nil && *p.ExitCode != 0 {
			m.appendLines(errorStyle.Render(fmt.Sprintf("[exit %d]", *p.ExitCode)))
		}

	case events.ProgressEvent:
		if !p.IsTerminal() {
			m.progress[p.Model] = p
			return
		}
		delete(m.progress, p.Model)
		if p.Error != nil {
			m.appendLines(errorStyle.Render(fmt.Sprintf("pull %s failed: %s", p.Model, *p.Error)))
		} else {
			m.appendLines(successStyle.Render(fmt.Sprintf("pulled %s", p.Model)))
		}

	case events.ChatMessageEvent:
		m.appendLines(m.renderChat(p.Content)...)

	case events.ModelsChangedEvent:
		m.appendLines(dimStyle.Render("model store changed: " + p.Path))

	case string:
		if env.Channel == events.ChannelChatError {
			m.appendLines(errorStyle.Render(p))
		}

	default:
		log.Debug(log.CatUI, "Unhandled event", "channel", env.Channel)
	}
}

func (m *Model) renderChat(content string) []string {
	if m.renderer != nil {
		if out, err := m.renderer.Render(content); err == nil {
			return strings.Split(strings.TrimRight(out, "\n"), "\n")
		} else if !errors.Is(err, context.Canceled) {
			log.ErrorErr(log.CatUI, "Failed to render chat reply", err)
		}
	}
	return strings.Split(strings.TrimRight(content, "\n"), "\n")
}

func (m *Model) appendLines(lines ...string) {
	m.lines = append(m.lines, lines...)
	if over := len(m.lines) - maxLines; over > 0 {
		m.lines = m.lines[over:]
	}
	m.refresh()
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// progressLine summarizes in-flight pulls, sorted by model.
func (m Model) progressLine() string {
	if len(m.progress) == 0 {
		return ""
	}
	models := make([]string, 0, len(m.progress))
	for name := range m.progress {
		models = append(models, name)
	}
	sort.Strings(models)

	parts := make([]string, 0, len(models))
	for _, name := range models {
		p := m.progress[name]
		pct := 0.0
		if p.Progress != nil {
			pct = *p.Progress
		}
		parts = append(parts, fmt.Sprintf("%s %s %.0f%%", name, p.Status, pct))
	}
	line := strings.Join(parts, "  ")
	if m.width > 0 {
		line = runewidth.Truncate(line, m.width, "…")
	}
	return line
}

// Lines returns the scrollback. Used in tests.
func (m Model) Lines() []string {
	return m.lines
}
