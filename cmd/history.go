package cmd

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/zjrosen/modeldeck/internal/events"
	"github.com/zjrosen/modeldeck/internal/history"
	"github.com/zjrosen/modeldeck/internal/presentation"
)

var (
	historyChannel  string
	historyLimit    int
	historyTerminal bool
	historyKeep     int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print recently recorded events",
	Long: `Print events recorded by the history store as JSON, oldest first.

Examples:
  modeldeck history --limit 20
  modeldeck history --channel progress --terminal`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if historyChannel != "" && !slices.Contains(events.Channels, historyChannel) {
			return fmt.Errorf("unknown channel %q", historyChannel)
		}

		db, err := openHistory()
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		stored, err := db.Store().Recent(commandContext(cmd), history.Query{
			Channel:      historyChannel,
			Limit:        historyLimit,
			TerminalOnly: historyTerminal,
		})
		if err != nil {
			return err
		}
		return presentation.NewFormatter(os.Stdout).FormatJSON(presentation.FromStoredEvents(stored))
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "history:prune",
	Short: "Delete all but the newest recorded events",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if historyKeep < 0 {
			return fmt.Errorf("--keep must not be negative")
		}
		db, err := openHistory()
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		n, err := db.Store().Prune(commandContext(cmd), historyKeep)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d events\n", n)
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyChannel, "channel", "", "Only show events on this channel")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", history.DefaultLimit, "Maximum number of events")
	historyCmd.Flags().BoolVar(&historyTerminal, "terminal", false, "Only show events that end an invocation")
	historyPruneCmd.Flags().IntVar(&historyKeep, "keep", 1000, "Number of newest events to keep")

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(historyPruneCmd)
}

func openHistory() (*history.DB, error) {
	if !cfg.History.Enabled {
		return nil, fmt.Errorf("history is disabled (history.enabled: false)")
	}
	return history.NewDB(cfg.History.Path)
}
