package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show tracker statistics",
	Run: func(cmd *cobra.Command, args []string) {
		stats, err := store.GetStatistics(cmd.Context())
		if err != nil {
			fatal("%v", err)
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(stats)
			return
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("Tracker Statistics"))
		fmt.Printf("  Issues:       %d total\n", stats.TotalIssues)
		fmt.Printf("    open:        %d\n", stats.OpenIssues)
		fmt.Printf("    in progress: %d\n", stats.InProgressIssues)
		fmt.Printf("    closed:      %d\n", stats.ClosedIssues)
		fmt.Printf("  Graph:        %d dependencies\n", stats.Dependencies)
		fmt.Printf("    ready:       %d\n", stats.ReadyIssues)
		fmt.Printf("    blocked:     %d\n", stats.BlockedIssues)
		if stats.AverageLeadTime > 0 {
			fmt.Printf("  Lead time:    %.1f hours average\n", stats.AverageLeadTime)
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
