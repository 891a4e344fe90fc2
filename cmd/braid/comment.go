package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var commentCmd = &cobra.Command{
	Use:   "comment <id> <text>",
	Short: "Add a comment to an issue's audit trail",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		if err := store.AddComment(ctx, args[0], actor, args[1]); err != nil {
			fatal("%v", err)
		}
		if err := flushJournal(ctx); err != nil {
			fatal("%v", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Commented on %s\n", green("✓"), args[0])
	},
}

func init() {
	rootCmd.AddCommand(commentCmd)
}
