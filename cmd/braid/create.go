package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/braidhq/braid/internal/priorities"
	"github.com/braidhq/braid/internal/types"
)

var (
	createDescription string
	createType        string
	createPriority    int
	createAssignee    string
	createEstimate    int
	createLabels      []string
	createDeps        []string
	createDiscovered  string
)

var createCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a new issue",
	Long: `Create a new issue. The ID is allocated automatically from the
project prefix.

Dependencies can be attached at creation with --deps, as type:id pairs
(the type defaults to blocks when omitted):

  braid create "Wire up login" --deps braid-3 --deps parent-child:braid-1

Issues found while working on something else can record their origin with
--discovered-from; unless --priority is given explicitly, the new issue
takes its priority from the source issue (one notch lower, capped at P3):

  braid create "Parser chokes on empty labels" --discovered-from braid-12`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		issue := &types.Issue{
			Title:       args[0],
			Description: createDescription,
			Priority:    createPriority,
			IssueType:   types.IssueType(createType),
			Assignee:    createAssignee,
			Labels:      createLabels,
		}
		if createEstimate > 0 {
			issue.EstimatedMinutes = &createEstimate
		}

		deps, err := parseDepSpecs(createDeps)
		if err != nil {
			fatal("%v", err)
		}

		if createDiscovered != "" {
			source, err := store.GetIssue(ctx, createDiscovered)
			if err != nil {
				fatal("%v", err)
			}
			if source == nil {
				fatal("source issue %s not found", createDiscovered)
			}
			if !cmd.Flags().Changed("priority") {
				issue.Priority = priorities.Inherit(source.Priority, types.DepDiscoveredFrom)
			}
			deps = append(deps, &types.Dependency{
				DependsOnID: source.ID,
				Type:        types.DepDiscoveredFrom,
			})
		}

		if err := store.CreateIssue(ctx, issue, actor); err != nil {
			fatal("%v", err)
		}

		for _, dep := range deps {
			dep.IssueID = issue.ID
			if err := store.AddDependency(ctx, dep, actor); err != nil {
				fatal("issue %s created, but dependency failed: %v", issue.ID, err)
			}
		}

		if err := flushJournal(ctx); err != nil {
			fatal("%v", err)
		}

		if jsonOutput {
			created, err := store.GetIssue(ctx, issue.ID)
			if err != nil {
				fatal("%v", err)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(created)
			return
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Created %s: %s\n", green("✓"), issue.ID, issue.Title)
	},
}

// parseDepSpecs parses --deps values of the form "id" or "type:id"
func parseDepSpecs(specs []string) ([]*types.Dependency, error) {
	var deps []*types.Dependency
	for _, spec := range specs {
		depType := types.DepBlocks
		id := spec
		if i := strings.Index(spec, ":"); i >= 0 {
			depType = types.DependencyType(spec[:i])
			id = spec[i+1:]
		}
		if !depType.IsValid() {
			return nil, fmt.Errorf("invalid dependency type in %q (options: blocks, related, parent-child, discovered-from)", spec)
		}
		if id == "" {
			return nil, fmt.Errorf("missing issue id in dependency spec %q", spec)
		}
		deps = append(deps, &types.Dependency{DependsOnID: id, Type: depType})
	}
	return deps, nil
}

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.Flags().StringVarP(&createDescription, "description", "d", "", "Issue description")
	createCmd.Flags().StringVarP(&createType, "type", "t", "task", "Issue type: bug, feature, task, epic, chore")
	createCmd.Flags().IntVarP(&createPriority, "priority", "p", 2, "Priority 0 (highest) to 4 (lowest)")
	createCmd.Flags().StringVarP(&createAssignee, "assignee", "a", "", "Assignee")
	createCmd.Flags().IntVar(&createEstimate, "estimate", 0, "Estimated minutes")
	createCmd.Flags().StringSliceVarP(&createLabels, "label", "l", nil, "Labels (repeatable)")
	createCmd.Flags().StringSliceVar(&createDeps, "deps", nil, "Dependencies as [type:]id (repeatable)")
	createCmd.Flags().StringVar(&createDiscovered, "discovered-from", "", "Record the issue this work was discovered during")
}
