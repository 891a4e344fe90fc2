package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var closeReason string

var closeCmd = &cobra.Command{
	Use:   "close <id> [id...]",
	Short: "Close one or more issues",
	Long: `Close issues. Closing an already-closed issue is a no-op, so the
command is safe to retry.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		green := color.New(color.FgGreen).SprintFunc()
		for _, id := range args {
			if err := store.CloseIssue(ctx, id, closeReason, actor); err != nil {
				fatal("%v", err)
			}
			fmt.Printf("%s Closed %s\n", green("✓"), id)
		}

		if err := flushJournal(ctx); err != nil {
			fatal("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(closeCmd)
	closeCmd.Flags().StringVarP(&closeReason, "reason", "r", "", "Why the issue is closed")
}
