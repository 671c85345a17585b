package ollama

import (
	"strings"
)

// Model is one row of `ollama list`.
type Model struct {
	Name     string `json:"name"`
	ID       string `json:"id"`
	Size     string `json:"size"`
	Modified string `json:"modified"`
}

// ParseList parses `ollama list` output. The first line is a header and is
// skipped, as are blank lines. Rows with fewer than four whitespace-separated
// tokens are dropped. The size is two tokens ("4.7 GB"); everything after it
// is the modification time ("2 weeks ago").
func ParseList(output string) []Model {
	lines := strings.Split(output, "\n")
	if len(lines) <= 1 {
		return []Model{}
	}

	models := make([]Model, 0, len(lines)-1)
	for _, line := range lines[1:] {
		parts := strings.Fields(line)
		if len(parts) < 4 {
			continue
		}
		models = append(models, Model{
			Name:     parts[0],
			ID:       parts[1],
			Size:     parts[2] + " " + parts[3],
			Modified: strings.Join(parts[4:], " "),
		})
	}
	return models
}
