package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/braidhq/braid/internal/journal"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all issues as JSONL",
	Long: `Write the canonical journal: one JSON record per issue, sorted by
ID. The same tracker state always produces byte-identical output, so
exports diff cleanly under version control.

With no --output flag the journal is written to stdout.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		if exportOutput == "" {
			if err := journal.Export(ctx, store, os.Stdout); err != nil {
				fatal("%v", err)
			}
			return
		}

		if err := journal.ExportToFile(ctx, store, exportOutput); err != nil {
			fatal("%v", err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Exported to %s\n", green("✓"), exportOutput)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to a file instead of stdout")
}
