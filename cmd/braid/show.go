package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/braidhq/braid/internal/types"
)

var showEvents bool

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an issue in full",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		id := args[0]

		issue, err := store.GetIssue(ctx, id)
		if err != nil {
			fatal("%v", err)
		}
		if issue == nil {
			fatal("issue %s not found", id)
		}

		deps, err := store.GetDependencyRecords(ctx, id)
		if err != nil {
			fatal("%v", err)
		}
		dependents, err := store.GetDependents(ctx, id)
		if err != nil {
			fatal("%v", err)
		}

		if jsonOutput {
			out := struct {
				*types.Issue
				Dependencies []*types.Dependency `json:"dependencies,omitempty"`
				Dependents   []string            `json:"dependents,omitempty"`
			}{Issue: issue, Dependencies: deps}
			for _, d := range dependents {
				out.Dependents = append(out.Dependents, d.ID)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(out)
			return
		}

		bold := color.New(color.Bold).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s %s\n\n", bold(issue.ID), bold(issue.Title))
		fmt.Printf("  Status:   %s\n", statusColored(issue.Status))
		fmt.Printf("  Priority: P%d\n", issue.Priority)
		fmt.Printf("  Type:     %s\n", issue.IssueType)
		if issue.Assignee != "" {
			fmt.Printf("  Assignee: %s\n", issue.Assignee)
		}
		if issue.EstimatedMinutes != nil {
			fmt.Printf("  Estimate: %d min\n", *issue.EstimatedMinutes)
		}
		if len(issue.Labels) > 0 {
			fmt.Printf("  Labels:   %s\n", strings.Join(issue.Labels, ", "))
		}
		fmt.Printf("  Created:  %s\n", issue.CreatedAt.Local().Format("2006-01-02 15:04"))
		if issue.ClosedAt != nil {
			fmt.Printf("  Closed:   %s\n", issue.ClosedAt.Local().Format("2006-01-02 15:04"))
		}

		if issue.Description != "" {
			fmt.Printf("\n%s\n", issue.Description)
		}
		if issue.Notes != "" {
			fmt.Printf("\n%s\n%s\n", gray("Notes:"), issue.Notes)
		}

		if len(deps) > 0 {
			fmt.Printf("\n%s\n", gray("Depends on:"))
			for _, dep := range deps {
				fmt.Printf("  %s (%s)\n", dep.DependsOnID, dep.Type)
			}
		}
		if len(dependents) > 0 {
			fmt.Printf("\n%s\n", gray("Depended on by:"))
			for _, d := range dependents {
				fmt.Printf("  %s: %s\n", d.ID, d.Title)
			}
		}

		if showEvents {
			events, err := store.GetEvents(ctx, id, 50)
			if err != nil {
				fatal("%v", err)
			}
			if len(events) > 0 {
				fmt.Printf("\n%s\n", gray("History:"))
				for _, e := range events {
					line := fmt.Sprintf("  %s  %s by %s",
						e.CreatedAt.Local().Format("2006-01-02 15:04"), e.EventType, e.Actor)
					if e.Comment != nil && *e.Comment != "" {
						line += ": " + *e.Comment
					}
					fmt.Println(line)
				}
			}
		}
		fmt.Println()
	},
}

func statusColored(s types.Status) string {
	switch s {
	case types.StatusOpen:
		return color.New(color.FgGreen).Sprint(string(s))
	case types.StatusInProgress:
		return color.New(color.FgCyan).Sprint(string(s))
	case types.StatusBlocked:
		return color.New(color.FgRed).Sprint(string(s))
	case types.StatusClosed:
		return color.New(color.FgHiBlack).Sprint(string(s))
	}
	return string(s)
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().BoolVar(&showEvents, "events", false, "Include the audit trail")
}
