package tui

import (
	"github.com/charmbracelet/glamour"
)

// noMarginStyle removes document margins so replies line up with other output.
const noMarginStyle = `{
	"document": {
		"margin": 0,
		"block_prefix": "",
		"block_suffix": ""
	}
}`

// markdownRenderer renders assistant replies.
type markdownRenderer struct {
	renderer *glamour.TermRenderer
	width    int
}

// newMarkdownRenderer creates a renderer using the "dark" or "light" style.
func newMarkdownRenderer(style string, width int) (*markdownRenderer, error) {
	if style == "" {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithStylesFromJSONBytes([]byte(noMarginStyle)),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	return &markdownRenderer{renderer: r, width: width}, nil
}

func (r *markdownRenderer) Render(markdown string) (string, error) {
	return r.renderer.Render(markdown)
}
