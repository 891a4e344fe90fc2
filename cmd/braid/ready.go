package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/braidhq/braid/internal/types"
)

var (
	readyAssignee   string
	readyUnassigned bool
	readyLabels     []string
	readyPriority   int
	readyLimit      int
	readyPolicy     string
)

var readyCmd = &cobra.Command{
	Use:   "ready",
	Short: "Show issues ready to work on",
	Long: `Show open issues with no open blockers. Only blocks dependencies
gate readiness; related, parent-child, and discovered-from edges are
informational.

Sort policies:
  priority  highest priority first (default)
  oldest    oldest first, so old work cannot starve
  hybrid    recent issues by priority, older issues by age`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		policy := readyPolicy
		if policy == "" {
			policy = cfg.SortPolicy
		}

		filter := types.WorkFilter{
			Unassigned: readyUnassigned,
			Labels:     readyLabels,
			Limit:      readyLimit,
			SortPolicy: types.SortPolicy(policy),
		}
		if cmd.Flags().Changed("assignee") {
			filter.Assignee = &readyAssignee
		}
		if cmd.Flags().Changed("priority") {
			filter.Priority = &readyPriority
		}

		issues, err := store.GetReadyWork(ctx, filter)
		if err != nil {
			fatal("%v", err)
		}

		if jsonOutput {
			printIssuesJSON(issues)
			return
		}

		if len(issues) == 0 {
			fmt.Println("No ready work. Run 'braid blocked' to see what is stuck.")
			return
		}
		for _, issue := range issues {
			printIssueRow(issue)
		}
	},
}

func init() {
	rootCmd.AddCommand(readyCmd)
	readyCmd.Flags().StringVarP(&readyAssignee, "assignee", "a", "", "Only issues assigned to this person")
	readyCmd.Flags().BoolVar(&readyUnassigned, "unassigned", false, "Only unassigned issues")
	readyCmd.Flags().StringSliceVarP(&readyLabels, "label", "l", nil, "Filter by label (repeatable, AND)")
	readyCmd.Flags().IntVarP(&readyPriority, "priority", "p", 0, "Only this priority")
	readyCmd.Flags().IntVar(&readyLimit, "limit", 0, "Maximum results")
	readyCmd.Flags().StringVar(&readyPolicy, "policy", "", "Sort policy: priority, oldest, hybrid")
}
