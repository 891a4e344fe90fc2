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

var (
	depType      string
	depTreeDepth int
)

var depCmd = &cobra.Command{
	Use:   "dep",
	Short: "Manage dependencies between issues",
	Long: `Manage the dependency graph.

Edge types:
  blocks           the dependency must close before the issue is ready
  related          informational link
  parent-child     epic/subtask structure
  discovered-from  provenance of work found while doing other work

blocks and parent-child edges are kept acyclic; adding an edge that would
close a loop is rejected.`,
}

var depAddCmd = &cobra.Command{
	Use:   "add <id> <depends-on-id>",
	Short: "Add a dependency edge",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		t := types.DependencyType(depType)
		if !t.IsValid() {
			fatal("invalid dependency type %q", depType)
		}

		err := store.AddDependency(ctx, &types.Dependency{
			IssueID:     args[0],
			DependsOnID: args[1],
			Type:        t,
		}, actor)
		if err != nil {
			fatal("%v", err)
		}
		if err := flushJournal(ctx); err != nil {
			fatal("%v", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s %s now depends on %s (%s)\n", green("✓"), args[0], args[1], t)
	},
}

var depRemoveCmd = &cobra.Command{
	Use:   "remove <id> <depends-on-id>",
	Short: "Remove a dependency edge",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		t := types.DependencyType(depType)
		if !t.IsValid() {
			fatal("invalid dependency type %q", depType)
		}

		if err := store.RemoveDependency(ctx, args[0], args[1], t, actor); err != nil {
			fatal("%v", err)
		}
		if err := flushJournal(ctx); err != nil {
			fatal("%v", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Removed %s edge %s -> %s\n", green("✓"), t, args[0], args[1])
	},
}

var depTreeCmd = &cobra.Command{
	Use:   "tree <id>",
	Short: "Show the dependency tree under an issue",
	Long: `Walk the dependency graph from an issue, breadth-first. Issues that
appear more than once are printed again but not re-expanded, marked with
an ellipsis.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		nodes, err := store.GetDependencyTree(cmd.Context(), args[0], depTreeDepth)
		if err != nil {
			fatal("%v", err)
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(nodes)
			return
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		for _, node := range nodes {
			indent := strings.Repeat("  ", node.Depth)
			suffix := ""
			if node.Truncated {
				suffix = gray(" …")
			}
			fmt.Printf("%s%s [P%d] %s%s\n", indent, node.ID, node.Priority, node.Title, suffix)
		}
	},
}

var depCyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "Check the graph for dependency cycles",
	Long: `Check blocks and parent-child edges for cycles. A healthy tracker
reports none; cycles can only appear through hand-edited journals or
partial imports.`,
	Run: func(cmd *cobra.Command, args []string) {
		cycles, err := store.DetectCycles(cmd.Context())
		if err != nil {
			fatal("%v", err)
		}

		if jsonOutput {
			out := make([][]string, 0, len(cycles))
			for _, cycle := range cycles {
				var ids []string
				for _, issue := range cycle {
					ids = append(ids, issue.ID)
				}
				out = append(out, ids)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(out)
			if len(cycles) > 0 {
				os.Exit(1)
			}
			return
		}

		if len(cycles) == 0 {
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Printf("%s No dependency cycles.\n", green("✓"))
			return
		}

		red := color.New(color.FgRed).SprintFunc()
		fmt.Printf("%s Found %d cycle(s):\n", red("✗"), len(cycles))
		for _, cycle := range cycles {
			var ids []string
			for _, issue := range cycle {
				ids = append(ids, issue.ID)
			}
			// Repeat the first ID to show the loop closing
			fmt.Printf("  %s -> %s\n", strings.Join(ids, " -> "), ids[0])
		}
		os.Exit(1)
	},
}

func init() {
	depCmd.PersistentFlags().StringVarP(&depType, "type", "t", "blocks", "Edge type")
	depTreeCmd.Flags().IntVar(&depTreeDepth, "depth", 0, "Maximum depth (default 50)")

	depCmd.AddCommand(depAddCmd)
	depCmd.AddCommand(depRemoveCmd)
	depCmd.AddCommand(depTreeCmd)
	depCmd.AddCommand(depCyclesCmd)
	rootCmd.AddCommand(depCmd)
}
