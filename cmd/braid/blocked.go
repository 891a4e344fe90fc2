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

var blockedCmd = &cobra.Command{
	Use:   "blocked",
	Short: "Show blocked issues and what blocks them",
	Run: func(cmd *cobra.Command, args []string) {
		blocked, err := store.GetBlockedIssues(cmd.Context())
		if err != nil {
			fatal("%v", err)
		}

		if jsonOutput {
			if blocked == nil {
				blocked = []*types.BlockedIssue{}
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(blocked)
			return
		}

		if len(blocked) == 0 {
			fmt.Println("No blocked issues.")
			return
		}

		red := color.New(color.FgRed).SprintFunc()
		for _, b := range blocked {
			fmt.Printf("%-12s [P%d] %s\n", b.ID, b.Priority, b.Title)
			fmt.Printf("             %s %s\n", red("blocked by:"), strings.Join(b.BlockedBy, ", "))
		}
	},
}

func init() {
	rootCmd.AddCommand(blockedCmd)
}
