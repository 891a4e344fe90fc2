package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/braidhq/braid/internal/storage"
	"github.com/braidhq/braid/internal/storage/sqlite"
)

var initCmd = &cobra.Command{
	Use:   "init [project-name]",
	Short: "Initialize a braid tracker in the current directory",
	Long: `Initialize a braid tracker by creating a .braid/ directory.

This creates:
  - .braid/ directory
  - .braid/<project-name>.db (SQLite query cache, ignored by git)
  - .braid/issues.jsonl (JSONL journal, committed to git)
  - .braid/.gitignore covering the database files

The project name becomes the issue ID prefix: project "myapp" yields
myapp-1, myapp-2, and so on. If no name is given, the current directory
name is used.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		projectName := ""
		if len(args) > 0 {
			projectName = args[0]
		}

		cwd, err := os.Getwd()
		if err != nil {
			fatal("failed to get current directory: %v", err)
		}

		path, err := storage.InitProject(cwd, projectName)
		if err != nil {
			fatal("%v", err)
		}

		// Open once so the schema exists before the first command
		db, err := sqlite.New(path)
		if err != nil {
			fatal("failed to initialize database: %v", err)
		}
		_ = db.Close()

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s Initialized braid tracker\n\n", green("✓"))
		fmt.Printf("  Database: %s\n", cyan(path))
		fmt.Printf("  Journal:  %s\n", cyan(storage.JournalPath(path)))
		fmt.Println()
		fmt.Printf("%s Next steps:\n", gray("→"))
		fmt.Printf("  %s\n", gray(`braid create "My first issue"`))
		fmt.Printf("  %s\n", gray("braid ready"))
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
