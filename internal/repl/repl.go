// Package repl implements the interactive braid shell.
package repl

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/braidhq/braid/internal/journal"
	"github.com/braidhq/braid/internal/storage"
	"github.com/braidhq/braid/internal/types"
)

// REPL represents the interactive shell
type REPL struct {
	store    storage.Storage
	syncer   *journal.Syncer
	rl       *readline.Instance
	ctx      context.Context
	actor    string
	commands map[string]CommandHandler
}

// CommandHandler handles a specific command
type CommandHandler func(args []string) error

// Config holds REPL configuration
type Config struct {
	Store  storage.Storage
	Syncer *journal.Syncer
	Actor  string
}

// New creates a new REPL instance
func New(cfg *Config) (*REPL, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}

	actor := cfg.Actor
	if actor == "" {
		actor = "user"
	}

	r := &REPL{
		store:    cfg.Store,
		syncer:   cfg.Syncer,
		actor:    actor,
		commands: make(map[string]CommandHandler),
	}

	r.registerCommands()

	return r, nil
}

// Run starts the REPL loop
func (r *REPL) Run(ctx context.Context) error {
	r.ctx = ctx

	cyan := color.New(color.FgCyan).SprintFunc()
	prompt := cyan("braid> ")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       "",
		AutoComplete:      newCompleter(ctx, r.store),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	r.rl = rl

	r.printWelcome()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			} else if err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := r.processInput(line); err != nil {
			if err == io.EOF {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Printf("%s %v\n", red("Error:"), err)
		}
	}
}

// processInput dispatches a single line of input
func (r *REPL) processInput(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	command := parts[0]
	args := parts[1:]

	// Keep the cache in sync with the journal before every command
	if r.syncer != nil {
		if err := r.syncer.EnsureFresh(r.ctx); err != nil {
			return err
		}
	}

	if handler, ok := r.commands[command]; ok {
		return handler(args)
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Printf("%s Unknown command %q. Type 'help' for available commands.\n", yellow("Note:"), command)
	return nil
}

func (r *REPL) registerCommands() {
	r.commands["help"] = r.cmdHelp
	r.commands["?"] = r.cmdHelp
	r.commands["exit"] = r.cmdExit
	r.commands["quit"] = r.cmdExit
	r.commands["ready"] = r.cmdReady
	r.commands["blocked"] = r.cmdBlocked
	r.commands["list"] = r.cmdList
	r.commands["show"] = r.cmdShow
	r.commands["create"] = r.cmdCreate
	r.commands["close"] = r.cmdClose
	r.commands["dep"] = r.cmdDep
	r.commands["comment"] = r.cmdComment
	r.commands["stats"] = r.cmdStats
}

func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("\n%s\n", cyan("braid interactive shell"))
	fmt.Println("Dependency-aware issue tracking")
	fmt.Println()
	fmt.Println("Type 'help' for available commands, 'exit' to quit")
	fmt.Println()
}

func (r *REPL) cmdHelp(args []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("\n%s\n\n", cyan("Available Commands:"))

	commands := []struct {
		name string
		desc string
	}{
		{"ready", "Show issues ready to work on"},
		{"blocked", "Show blocked issues and their blockers"},
		{"list", "List open issues"},
		{"show <id>", "Show one issue in full"},
		{"create <title>", "Create a new issue"},
		{"close <id>", "Close an issue"},
		{"dep <id> <on-id> [type]", "Add a dependency edge"},
		{"comment <id> <text>", "Comment on an issue"},
		{"stats", "Show tracker statistics"},
		{"help, ?", "Show this help message"},
		{"exit, quit", "Exit the shell"},
	}
	for _, cmd := range commands {
		fmt.Printf("  %-26s %s\n", green(cmd.name), cmd.desc)
	}
	fmt.Println()
	return nil
}

func (r *REPL) cmdExit(args []string) error {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("\n%s Goodbye!\n", green("✓"))
	r.rl.Close()
	return io.EOF
}

func (r *REPL) cmdReady(args []string) error {
	ready, err := r.store.GetReadyWork(r.ctx, types.WorkFilter{Limit: 20})
	if err != nil {
		return err
	}
	if len(ready) == 0 {
		fmt.Println("No ready work.")
		return nil
	}
	for _, issue := range ready {
		printIssueLine(issue)
	}
	return nil
}

func (r *REPL) cmdBlocked(args []string) error {
	blocked, err := r.store.GetBlockedIssues(r.ctx)
	if err != nil {
		return err
	}
	if len(blocked) == 0 {
		fmt.Println("No blocked issues.")
		return nil
	}
	red := color.New(color.FgRed).SprintFunc()
	for _, b := range blocked {
		fmt.Printf("%s [P%d] %s %s %s\n", b.ID, b.Priority, b.Title,
			red("blocked by"), strings.Join(b.BlockedBy, ", "))
	}
	return nil
}

func (r *REPL) cmdList(args []string) error {
	open := types.StatusOpen
	issues, err := r.store.SearchIssues(r.ctx, strings.Join(args, " "), types.IssueFilter{Status: &open, Limit: 50})
	if err != nil {
		return err
	}
	if len(issues) == 0 {
		fmt.Println("No matching issues.")
		return nil
	}
	for _, issue := range issues {
		printIssueLine(issue)
	}
	return nil
}

func (r *REPL) cmdShow(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: show <id>")
	}
	issue, err := r.store.GetIssue(r.ctx, args[0])
	if err != nil {
		return err
	}
	if issue == nil {
		return fmt.Errorf("issue %s: %w", args[0], storage.ErrNotFound)
	}

	bold := color.New(color.Bold).SprintFunc()
	fmt.Printf("%s %s\n", bold(issue.ID), issue.Title)
	fmt.Printf("  status: %s  priority: P%d  type: %s\n", issue.Status, issue.Priority, issue.IssueType)
	if issue.Assignee != "" {
		fmt.Printf("  assignee: %s\n", issue.Assignee)
	}
	if len(issue.Labels) > 0 {
		fmt.Printf("  labels: %s\n", strings.Join(issue.Labels, ", "))
	}
	if issue.Description != "" {
		fmt.Printf("\n%s\n", issue.Description)
	}

	deps, err := r.store.GetDependencyRecords(r.ctx, issue.ID)
	if err != nil {
		return err
	}
	for _, dep := range deps {
		fmt.Printf("  depends on %s (%s)\n", dep.DependsOnID, dep.Type)
	}
	return nil
}

func (r *REPL) cmdCreate(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: create <title words> [p0-p4]")
	}

	priority := 2
	// Trailing pN sets the priority
	if last := args[len(args)-1]; len(last) == 2 && (last[0] == 'p' || last[0] == 'P') {
		if n, err := strconv.Atoi(last[1:]); err == nil && n >= 0 && n <= 4 {
			priority = n
			args = args[:len(args)-1]
		}
	}
	if len(args) == 0 {
		return fmt.Errorf("title is required")
	}

	issue := &types.Issue{
		Title:    strings.Join(args, " "),
		Priority: priority,
	}
	if err := r.store.CreateIssue(r.ctx, issue, r.actor); err != nil {
		return err
	}
	if err := r.flush(); err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s Created %s\n", green("✓"), issue.ID)
	return nil
}

func (r *REPL) cmdClose(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: close <id> [reason]")
	}
	reason := strings.Join(args[1:], " ")
	if reason == "" {
		reason = "closed from shell"
	}
	if err := r.store.CloseIssue(r.ctx, args[0], reason, r.actor); err != nil {
		return err
	}
	if err := r.flush(); err != nil {
		return err
	}
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s Closed %s\n", green("✓"), args[0])
	return nil
}

func (r *REPL) cmdDep(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("usage: dep <id> <depends-on-id> [blocks|related|parent-child|discovered-from]")
	}
	depType := types.DepBlocks
	if len(args) == 3 {
		depType = types.DependencyType(args[2])
	}
	err := r.store.AddDependency(r.ctx, &types.Dependency{
		IssueID:     args[0],
		DependsOnID: args[1],
		Type:        depType,
	}, r.actor)
	if err != nil {
		return err
	}
	if err := r.flush(); err != nil {
		return err
	}
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s %s now depends on %s (%s)\n", green("✓"), args[0], args[1], depType)
	return nil
}

func (r *REPL) cmdComment(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: comment <id> <text>")
	}
	if err := r.store.AddComment(r.ctx, args[0], r.actor, strings.Join(args[1:], " ")); err != nil {
		return err
	}
	return r.flush()
}

func (r *REPL) cmdStats(args []string) error {
	stats, err := r.store.GetStatistics(r.ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Issues: %d total, %d open, %d in progress, %d closed\n",
		stats.TotalIssues, stats.OpenIssues, stats.InProgressIssues, stats.ClosedIssues)
	fmt.Printf("Graph: %d dependencies, %d ready, %d blocked\n",
		stats.Dependencies, stats.ReadyIssues, stats.BlockedIssues)
	if stats.AverageLeadTime > 0 {
		fmt.Printf("Average lead time: %.1f hours\n", stats.AverageLeadTime)
	}
	return nil
}

func (r *REPL) flush() error {
	if r.syncer == nil {
		return nil
	}
	return r.syncer.Flush(r.ctx)
}

func printIssueLine(issue *types.Issue) {
	priorityColor := color.New(color.FgWhite)
	switch issue.Priority {
	case 0:
		priorityColor = color.New(color.FgRed, color.Bold)
	case 1:
		priorityColor = color.New(color.FgYellow)
	}
	fmt.Printf("%s %s %s\n", issue.ID, priorityColor.Sprintf("[P%d]", issue.Priority), issue.Title)
}
