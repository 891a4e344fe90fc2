package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/braidhq/braid/internal/types"
)

var (
	listStatus   string
	listType     string
	listAssignee string
	listLabels   []string
	listPriority int
	listLimit    int
	listAll      bool
)

var listCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "List issues",
	Long: `List issues, optionally filtered. A query argument matches against
titles, descriptions, and IDs. Closed issues are hidden unless --all or
an explicit --status is given.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		query := ""
		if len(args) > 0 {
			query = args[0]
		}

		filter := types.IssueFilter{Limit: listLimit, Labels: listLabels}
		// Default view hides closed issues
		filter.ExcludeClosed = listStatus == "" && !listAll
		if listStatus != "" {
			status := types.Status(listStatus)
			if !status.IsValid() {
				fatal("invalid status %q", listStatus)
			}
			filter.Status = &status
		}
		if listType != "" {
			issueType := types.IssueType(listType)
			if !issueType.IsValid() {
				fatal("invalid type %q", listType)
			}
			filter.IssueType = &issueType
		}
		if cmd.Flags().Changed("assignee") {
			filter.Assignee = &listAssignee
		}
		if cmd.Flags().Changed("priority") {
			filter.Priority = &listPriority
		}

		issues, err := store.SearchIssues(ctx, query, filter)
		if err != nil {
			fatal("%v", err)
		}

		if jsonOutput {
			printIssuesJSON(issues)
			return
		}

		if len(issues) == 0 {
			fmt.Println("No matching issues.")
			return
		}
		for _, issue := range issues {
			printIssueRow(issue)
		}
	},
}

func printIssueRow(issue *types.Issue) {
	priority := fmt.Sprintf("[P%d]", issue.Priority)
	switch issue.Priority {
	case 0:
		priority = color.New(color.FgRed, color.Bold).Sprint(priority)
	case 1:
		priority = color.New(color.FgYellow).Sprint(priority)
	}
	fmt.Printf("%-12s %s %-12s %s\n", issue.ID, priority, statusColored(issue.Status), issue.Title)
}

func printIssuesJSON(issues []*types.Issue) {
	if issues == nil {
		issues = []*types.Issue{}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(issues)
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "Filter by status")
	listCmd.Flags().StringVarP(&listType, "type", "t", "", "Filter by issue type")
	listCmd.Flags().StringVarP(&listAssignee, "assignee", "a", "", "Filter by assignee")
	listCmd.Flags().StringSliceVarP(&listLabels, "label", "l", nil, "Filter by label (repeatable, AND)")
	listCmd.Flags().IntVarP(&listPriority, "priority", "p", 0, "Filter by priority")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum results")
	listCmd.Flags().BoolVar(&listAll, "all", false, "Include closed issues")
}
