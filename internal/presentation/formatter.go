// Package presentation formats command results for CLI output.
package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/zjrosen/modeldeck/internal/ollama"
	"github.com/zjrosen/modeldeck/internal/tracing"
)

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
}

// NewFormatter creates a new formatter
func NewFormatter(writer io.Writer) *Formatter {
	return &Formatter{
		writer: writer,
	}
}

// FormatJSON writes v as indented JSON.
func (f *Formatter) FormatJSON(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// FormatEventLine writes one event as a single JSON line.
func (f *Formatter) FormatEventLine(ev EventDTO) error {
	return json.NewEncoder(f.writer).Encode(ev)
}

// FormatModelsTable writes models as aligned columns, like `ollama list`.
func (f *Formatter) FormatModelsTable(models []ollama.Model) error {
	tw := tabwriter.NewWriter(f.writer, 0, 4, 3, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tID\tSIZE\tMODIFIED")
	for _, m := range models {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Name, m.ID, m.Size, m.Modified)
	}
	return tw.Flush()
}

// FormatTraceSummary writes per-operation span statistics.
func (f *Formatter) FormatTraceSummary(ops []tracing.OpSummary) error {
	tw := tabwriter.NewWriter(f.writer, 0, 4, 3, ' ', 0)
	_, _ = fmt.Fprintln(tw, "OPERATION\tCOUNT\tERRORS\tAVG MS\tMAX MS")
	for _, op := range ops {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%.1f\t%.1f\n", op.Operation, op.Count, op.Errors, op.AvgMs, op.MaxMs)
	}
	return tw.Flush()
}
