package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	updateTitle       string
	updateDescription string
	updateNotes       string
	updateStatus      string
	updateType        string
	updateAssignee    string
	updatePriority    int
	updateEstimate    int
)

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update fields on an issue",
	Long: `Update one or more fields on an issue. Only flags you pass are
changed. Setting --status closed stamps closed_at; moving a closed issue
to any other status clears it.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		id := args[0]

		updates := map[string]interface{}{}
		if cmd.Flags().Changed("title") {
			updates["title"] = updateTitle
		}
		if cmd.Flags().Changed("description") {
			updates["description"] = updateDescription
		}
		if cmd.Flags().Changed("notes") {
			updates["notes"] = updateNotes
		}
		if cmd.Flags().Changed("status") {
			updates["status"] = updateStatus
		}
		if cmd.Flags().Changed("type") {
			updates["issue_type"] = updateType
		}
		if cmd.Flags().Changed("assignee") {
			updates["assignee"] = updateAssignee
		}
		if cmd.Flags().Changed("priority") {
			updates["priority"] = updatePriority
		}
		if cmd.Flags().Changed("estimate") {
			updates["estimated_minutes"] = updateEstimate
		}

		if len(updates) == 0 {
			fatal("nothing to update (see 'braid update --help' for flags)")
		}

		if err := store.UpdateIssue(ctx, id, updates, actor); err != nil {
			fatal("%v", err)
		}
		if err := flushJournal(ctx); err != nil {
			fatal("%v", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Updated %s\n", green("✓"), id)
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().StringVar(&updateTitle, "title", "", "New title")
	updateCmd.Flags().StringVarP(&updateDescription, "description", "d", "", "New description")
	updateCmd.Flags().StringVar(&updateNotes, "notes", "", "New notes")
	updateCmd.Flags().StringVarP(&updateStatus, "status", "s", "", "New status: open, in_progress, blocked, closed")
	updateCmd.Flags().StringVarP(&updateType, "type", "t", "", "New issue type")
	updateCmd.Flags().StringVarP(&updateAssignee, "assignee", "a", "", "New assignee (empty string unassigns)")
	updateCmd.Flags().IntVarP(&updatePriority, "priority", "p", 0, "New priority 0-4")
	updateCmd.Flags().IntVar(&updateEstimate, "estimate", 0, "New estimate in minutes")
}
