package main

import (
	"github.com/spf13/cobra"

	"github.com/braidhq/braid/internal/repl"
	"github.com/braidhq/braid/internal/storage"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive shell",
	Long: `Start an interactive shell with tab completion for commands and
issue IDs. The shell keeps the cache synced with the journal, so edits
made by other tools (or git) show up between commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// A long-running shell holds the writer lock so a second shell on
		// the same tracker fails fast instead of interleaving exports
		lockPath, err := storage.AcquireExclusiveLock(dbPath, Version)
		if err != nil {
			return err
		}
		defer func() { _ = storage.ReleaseExclusiveLock(lockPath) }()

		r, err := repl.New(&repl.Config{
			Store:  store,
			Syncer: syncer,
			Actor:  actor,
		})
		if err != nil {
			return err
		}
		return r.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(replCmd)
}
