package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "Manage issue labels",
}

var labelAddCmd = &cobra.Command{
	Use:   "add <id> <label> [label...]",
	Short: "Add labels to an issue",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		id := args[0]

		for _, label := range args[1:] {
			if err := store.AddLabel(ctx, id, label, actor); err != nil {
				fatal("%v", err)
			}
		}
		if err := flushJournal(ctx); err != nil {
			fatal("%v", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Labeled %s: %s\n", green("✓"), id, strings.Join(args[1:], ", "))
	},
}

var labelRemoveCmd = &cobra.Command{
	Use:   "remove <id> <label>",
	Short: "Remove a label from an issue",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		if err := store.RemoveLabel(ctx, args[0], args[1], actor); err != nil {
			fatal("%v", err)
		}
		if err := flushJournal(ctx); err != nil {
			fatal("%v", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Removed label %q from %s\n", green("✓"), args[1], args[0])
	},
}

var labelListCmd = &cobra.Command{
	Use:   "list <label>",
	Short: "List issues carrying a label",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		issues, err := store.GetIssuesByLabel(cmd.Context(), args[0])
		if err != nil {
			fatal("%v", err)
		}

		if jsonOutput {
			printIssuesJSON(issues)
			return
		}

		if len(issues) == 0 {
			fmt.Printf("No issues labeled %q.\n", args[0])
			return
		}
		for _, issue := range issues {
			printIssueRow(issue)
		}
	},
}

func init() {
	labelCmd.AddCommand(labelAddCmd)
	labelCmd.AddCommand(labelRemoveCmd)
	labelCmd.AddCommand(labelListCmd)
	rootCmd.AddCommand(labelCmd)
}
