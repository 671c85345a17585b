package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/modeldeck/internal/presentation"
	"github.com/zjrosen/modeldeck/internal/tracing"
)

var tracesJSON bool

var tracesCmd = &cobra.Command{
	Use:   "traces",
	Short: "Summarize recorded operation spans",
	Long: `Read the trace file written by the "file" exporter and print, per
operation, how often it ran, how often it failed and how long it took.

Enable recording with:
  modeldeck config:set tracing.enabled true`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		tc := cfg.Tracing.ToTracing()
		if tc.Exporter != tracing.ExporterFile {
			return fmt.Errorf("traces are only readable with the file exporter (tracing.exporter is %q)", tc.Exporter)
		}

		records, err := tracing.ReadRecords(tc.FilePath)
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no traces recorded yet at %s", tc.FilePath)
		}
		if err != nil {
			return err
		}

		summary := tracing.Summarize(records)
		f := presentation.NewFormatter(cmd.OutOrStdout())
		if tracesJSON {
			return f.FormatJSON(summary)
		}
		return f.FormatTraceSummary(summary)
	},
}

func init() {
	tracesCmd.Flags().BoolVar(&tracesJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(tracesCmd)
}
