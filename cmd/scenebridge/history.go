package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/muurk/scenebridge/internal/journal"
	"github.com/muurk/scenebridge/internal/logging"
	"github.com/muurk/scenebridge/internal/ui"
)

var (
	historyPath  string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent commands from the journal",
	Long: `Print the most recent commands recorded by a server started with a
journal (--journal or journal.path in the config file), newest first.

The journal file is locked while the server runs, so stop the server before
reading it.`,
	Example: `  # Last 20 commands
  scenebridge history

  # Everything, as JSON
  scenebridge history --limit 0 --json

  # A specific journal file
  scenebridge history --journal /tmp/scenebridge.db`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyPath, "journal", "", "Journal file (default: journal.path from the config file)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show (0 = all)")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if err := logging.InitializeFromEnv(); err != nil {
		return err
	}
	defer logging.Sync()

	path := historyPath
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Journal.Path
	}
	if path == "" {
		return errors.New("no journal configured: pass --journal or set journal.path in the config file")
	}

	j, err := journal.OpenReadOnly(path)
	if errors.Is(err, journal.ErrLocked) {
		return fmt.Errorf("%w (is 'scenebridge serve' still running?)", err)
	}
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.Recent(historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !pretty() {
		if entries == nil {
			entries = []journal.Entry{}
		}
		return writeJSON(out, entries)
	}
	fmt.Fprintln(out, ui.RenderHistory(entries))
	return nil
}
