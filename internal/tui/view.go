package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")).PaddingLeft(1)
	headerStyle  = lipgloss.NewStyle().Bold(true)
	commandStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#54A0FF"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#73F59F"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#696969"))
	logStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FECA57"))
	dividerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#3A3A3A"))
)

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}

	divider := dividerStyle.Render(strings.Repeat("─", max(m.width, 1)))

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("modeldeck"))
	sb.WriteString("\n")
	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")
	sb.WriteString(divider)
	sb.WriteString("\n")
	sb.WriteString(dimStyle.Render(m.progressLine()))
	sb.WriteString("\n")
	sb.WriteString(m.input.View())
	sb.WriteString("\n")
	sb.WriteString(m.help.View(m.keys))
	return sb.String()
}
