package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"
	"golang.org/x/sync/errgroup"

	"github.com/braidhq/braid/internal/journal"
)

var doctorVerbose bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check tracker health",
	Long: `Run health checks to diagnose common tracker problems.

This command checks for:
- Database accessibility
- Journal parseability (merge conflicts, malformed lines)
- Cache staleness against the journal
- Dependency cycles
- Dangling dependency edges
- Version skew between the binary and the database

Exit codes:
  0 - All checks passed
  1 - One or more checks failed`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()

		fmt.Printf("Running braid health checks...\n\n")

		var mu sync.Mutex
		var results []checkResult
		report := func(r checkResult) {
			mu.Lock()
			defer mu.Unlock()
			results = append(results, r)
		}

		// Independent read-only checks run concurrently
		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			_, err := store.GetStatistics(gctx)
			if err != nil {
				report(checkResult{name: "database access", err: err})
			} else {
				report(checkResult{name: "database access"})
			}
			return nil
		})

		g.Go(func() error {
			r := checkResult{name: "dependency cycles"}
			cycles, err := store.DetectCycles(gctx)
			if err != nil {
				r.err = err
			} else if len(cycles) > 0 {
				r.err = fmt.Errorf("%d cycle(s) found (run 'braid dep cycles')", len(cycles))
			}
			report(r)
			return nil
		})

		g.Go(func() error {
			r := checkResult{name: "journal freshness"}
			if journalFile == "" {
				r.warning = "no journal configured"
				report(r)
				return nil
			}
			stale, err := journal.IsStale(gctx, store, journalFile)
			if err != nil {
				r.err = err
			} else if stale {
				r.warning = "journal changed on disk; next command will re-import"
			}
			report(r)
			return nil
		})

		g.Go(func() error {
			r := checkResult{name: "journal integrity"}
			if journalFile == "" {
				report(r)
				return nil
			}
			f, err := os.Open(journalFile)
			if os.IsNotExist(err) {
				r.warning = "journal file missing (will be created on next write)"
				report(r)
				return nil
			}
			if err != nil {
				r.err = err
				report(r)
				return nil
			}
			defer f.Close()
			// A dry-run parse against a throwaway reader catches merge
			// conflicts and malformed lines without touching the cache
			if err := journal.Verify(f); err != nil {
				r.err = err
			}
			report(r)
			return nil
		})

		g.Go(func() error {
			r := checkResult{name: "dangling edges"}
			edges, err := store.GetAllDependencyRecords(gctx)
			if err != nil {
				r.err = err
				report(r)
				return nil
			}
			for _, edge := range edges {
				for _, id := range []string{edge.IssueID, edge.DependsOnID} {
					issue, err := store.GetIssue(gctx, id)
					if err != nil {
						r.err = err
						break
					}
					if issue == nil {
						r.err = fmt.Errorf("edge %s -> %s references missing issue %s",
							edge.IssueID, edge.DependsOnID, id)
						break
					}
				}
				if r.err != nil {
					break
				}
			}
			report(r)
			return nil
		})

		g.Go(func() error {
			report(checkVersion(gctx))
			return nil
		})

		_ = g.Wait()

		failed := 0
		for _, r := range results {
			switch {
			case r.err != nil:
				failed++
				fmt.Printf("  %s %s: %v\n", red("✗"), r.name, r.err)
			case r.warning != "":
				fmt.Printf("  %s %s: %s\n", yellow("⚠"), r.name, r.warning)
			default:
				fmt.Printf("  %s %s\n", green("✓"), r.name)
				if doctorVerbose {
					fmt.Printf("    ok\n")
				}
			}
		}

		fmt.Println()
		if failed > 0 {
			fmt.Printf("%s %d check(s) failed\n", red("✗"), failed)
			os.Exit(1)
		}
		fmt.Printf("%s All checks passed\n", green("✓"))
	},
}

// checkResult is one doctor check outcome
type checkResult struct {
	name    string
	err     error
	warning string
}

// checkVersion compares the binary's version with the one recorded in the
// database, flagging databases written by a newer braid
func checkVersion(ctx context.Context) checkResult {
	r := checkResult{name: "version"}

	stored, err := store.GetConfig(ctx, "braid_version")
	if err != nil {
		r.err = err
		return r
	}
	current := "v" + Version
	if stored == "" {
		// First run against this database; record our version
		if err := store.SetConfig(ctx, "braid_version", current); err != nil {
			r.err = err
		}
		return r
	}
	if !semver.IsValid(stored) {
		r.warning = fmt.Sprintf("unrecognized recorded version %q", stored)
		return r
	}
	switch semver.Compare(current, stored) {
	case -1:
		r.warning = fmt.Sprintf("database last written by braid %s, this binary is %s (consider upgrading)", stored, current)
	case 1:
		if err := store.SetConfig(ctx, "braid_version", current); err != nil {
			r.err = err
		}
	}
	return r
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVarP(&doctorVerbose, "verbose", "v", false, "Show detail for passing checks")
}
