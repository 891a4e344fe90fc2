// Command braid is a dependency-aware issue tracker.
//
// State lives in two places: a JSONL journal (.braid/issues.jsonl) that is
// the durable, git-friendly source of truth, and a SQLite cache that answers
// queries. Commands re-import the journal when it changed on disk and flush
// the cache back after every mutation.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/braidhq/braid/internal/config"
	"github.com/braidhq/braid/internal/journal"
	"github.com/braidhq/braid/internal/storage"
	"github.com/braidhq/braid/internal/storage/sqlite"
)

// Version is the braid release version, injected at build time
var Version = "0.3.0"

var (
	store       storage.Storage
	syncer      *journal.Syncer
	cfg         *config.Config
	actor       string
	journalFile string

	dbPath     string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "braid",
	Short: "Dependency-aware issue tracker",
	Long: `braid tracks issues and the dependencies between them, and tells you
what is ready to work on right now.

Issues live in .braid/issues.jsonl, a line-per-issue JSON log that commits
cleanly to version control. A SQLite cache answers queries and is rebuilt
from the journal whenever it changes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// init creates the project; everything else needs one
		switch cmd.Name() {
		case "init", "version", "help", "completion":
			return nil
		}
		return openTracker(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
		}
	},
}

// openTracker locates the database, loads config, and wires the journal
// syncer. Read commands get a fresh cache via auto-import; write commands
// flush through the same syncer.
func openTracker(ctx context.Context) error {
	path := dbPath
	if path == "" {
		var err error
		path, err = storage.DiscoverDatabase()
		if err != nil {
			return fmt.Errorf("no tracker found: %w (run 'braid init' first)", err)
		}
		dbPath = path
	}

	s, err := sqlite.New(path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	store = s

	root := filepath.Dir(filepath.Dir(path))
	if path == ":memory:" {
		root = "."
	}
	cfg, err = config.Load(root)
	if err != nil {
		_ = store.Close()
		store = nil
		return err
	}
	actor = cfg.Actor

	journalFile = storage.JournalPath(path)
	syncer = journal.NewSyncer(store, journalFile)

	if cfg.AutoImport {
		if err := syncer.EnsureFresh(ctx); err != nil {
			return fmt.Errorf("journal sync: %w", err)
		}
	}
	return nil
}

// flushJournal exports the cache to the journal after a mutation
func flushJournal(ctx context.Context) error {
	if !cfg.AutoExport {
		return nil
	}
	return syncer.Flush(ctx)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: discover .braid/*.db)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output machine-readable JSON")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
