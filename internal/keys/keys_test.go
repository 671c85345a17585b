package keys

import (
	"testing"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"
)

func TestDefaultKeyMap_Matches(t *testing.T) {
	km := DefaultKeyMap()

	tests := []struct {
		name    string
		msg     tea.KeyMsg
		binding key.Binding
	}{
		{"enter submits", tea.KeyMsg{Type: tea.KeyEnter}, km.Submit},
		{"up recalls", tea.KeyMsg{Type: tea.KeyUp}, km.HistoryPrev},
		{"ctrl+p recalls", tea.KeyMsg{Type: tea.KeyCtrlP}, km.HistoryPrev},
		{"down advances", tea.KeyMsg{Type: tea.KeyDown}, km.HistoryNext},
		{"pgup scrolls", tea.KeyMsg{Type: tea.KeyPgUp}, km.ScrollUp},
		{"pgdown scrolls", tea.KeyMsg{Type: tea.KeyPgDown}, km.ScrollDown},
		{"ctrl+l clears", tea.KeyMsg{Type: tea.KeyCtrlL}, km.Clear},
		{"ctrl+c quits", tea.KeyMsg{Type: tea.KeyCtrlC}, km.Quit},
		{"esc quits", tea.KeyMsg{Type: tea.KeyEsc}, km.Quit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, key.Matches(tt.msg, tt.binding))
		})
	}
}

func TestDefaultKeyMap_PlainRunesDoNotBind(t *testing.T) {
	km := DefaultKeyMap()
	msg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}

	for _, row := range km.FullHelp() {
		for _, b := range row {
			require.False(t, key.Matches(msg, b), "typing must never trigger %q", b.Help().Desc)
		}
	}
}

func TestDefaultKeyMap_HelpText(t *testing.T) {
	km := DefaultKeyMap()
	require.Len(t, km.ShortHelp(), 4)
	for _, b := range km.ShortHelp() {
		require.NotEmpty(t, b.Help().Key)
		require.NotEmpty(t, b.Help().Desc)
	}
	require.Equal(t, "esc", km.Quit.Help().Key)
}
