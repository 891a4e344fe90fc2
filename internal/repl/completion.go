package repl

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/braidhq/braid/internal/storage"
	"github.com/braidhq/braid/internal/types"
)

// completer implements readline.AutoCompleter with command names and live
// issue IDs. IDs are cached briefly so tab completion never hits the
// database more than once per second.
type completer struct {
	ctx   context.Context
	store storage.Storage

	mu        sync.Mutex
	ids       []string
	fetchedAt time.Time
}

const idCacheTTL = time.Second

var commandNames = []string{
	"ready", "blocked", "list", "show", "create", "close",
	"dep", "comment", "stats", "help", "exit", "quit",
}

func newCompleter(ctx context.Context, store storage.Storage) *completer {
	return &completer{ctx: ctx, store: store}
}

// Do implements readline.AutoCompleter
func (c *completer) Do(line []rune, pos int) ([][]rune, int) {
	prefix := string(line[:pos])

	var candidates []string
	if strings.ContainsRune(prefix, ' ') {
		// Arguments complete to issue IDs
		fields := strings.Split(prefix, " ")
		word := fields[len(fields)-1]
		for _, id := range c.issueIDs() {
			if strings.HasPrefix(id, word) {
				candidates = append(candidates, id)
			}
		}
		return toSuffixes(candidates, word), len(word)
	}

	for _, name := range commandNames {
		if strings.HasPrefix(name, prefix) {
			candidates = append(candidates, name)
		}
	}
	return toSuffixes(candidates, prefix), len(prefix)
}

func (c *completer) issueIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Since(c.fetchedAt) < idCacheTTL {
		return c.ids
	}

	issues, err := c.store.SearchIssues(c.ctx, "", types.IssueFilter{Limit: 500})
	if err != nil {
		return c.ids
	}
	ids := make([]string, 0, len(issues))
	for _, issue := range issues {
		ids = append(ids, issue.ID)
	}
	c.ids = ids
	c.fetchedAt = time.Now()
	return c.ids
}

func toSuffixes(candidates []string, word string) [][]rune {
	var out [][]rune
	for _, cand := range candidates {
		out = append(out, []rune(strings.TrimPrefix(cand, word)+" "))
	}
	return out
}
