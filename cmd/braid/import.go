package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/braidhq/braid/internal/journal"
)

var importInput string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import issues from JSONL",
	Long: `Replay a journal into the cache. Existing issues with matching IDs
are overwritten with the journal's version; identical duplicate lines
collapse to one. Divergent records for the same ID abort the import so a
bad merge never silently loses data.

With no --input flag the journal is read from stdin.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		var result *journal.ImportResult
		var err error
		if importInput == "" {
			result, err = journal.Import(ctx, store, os.Stdin)
		} else {
			result, err = journal.ImportFile(ctx, store, importInput)
		}
		if err != nil {
			fatal("%v", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Imported %d issue(s)", green("✓"), result.Imported)
		if result.Collapsed > 0 {
			fmt.Printf(" (%d duplicate line(s) collapsed)", result.Collapsed)
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVarP(&importInput, "input", "i", "", "Read from a file instead of stdin")
}
