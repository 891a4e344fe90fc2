package repl

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/braidhq/braid/internal/storage/sqlite"
	"github.com/braidhq/braid/internal/types"
)

func setupTestStorage(t *testing.T) *sqlite.SQLiteStorage {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "braid.db"))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createTestIssues(t *testing.T, ctx context.Context, store *sqlite.SQLiteStorage, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		issue := &types.Issue{Title: "Test issue", Priority: 2}
		if err := store.CreateIssue(ctx, issue, "test"); err != nil {
			t.Fatalf("Failed to create issue: %v", err)
		}
	}
}

func TestCompleterCommandNames(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)

	c := newCompleter(ctx, store)

	line := []rune("re")
	candidates, length := c.Do(line, len(line))
	if length != 2 {
		t.Errorf("Expected prefix length 2, got %d", length)
	}

	found := false
	for _, cand := range candidates {
		if strings.TrimSpace(string(cand)) == "ady" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected 'ready' completion for 're', got %q", candidates)
	}
}

func TestCompleterIssueIDs(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	createTestIssues(t, ctx, store, 5)

	c := newCompleter(ctx, store)

	line := []rune("show braid-")
	candidates, _ := c.Do(line, len(line))
	if len(candidates) != 5 {
		t.Errorf("Expected 5 issue ID completions, got %d", len(candidates))
	}
}

func TestCompleterPerformance(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	createTestIssues(t, ctx, store, 50)

	c := newCompleter(ctx, store)

	inputs := []string{"", "r", "show ", "show braid-", "dep braid-1 "}
	for _, input := range inputs {
		start := time.Now()
		line := []rune(input)
		c.Do(line, len(line))
		if d := time.Since(start); d > 100*time.Millisecond {
			t.Errorf("Completion of %q too slow: %v", input, d)
		}
	}
}

func TestCompleterCachesIDs(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	createTestIssues(t, ctx, store, 2)

	c := newCompleter(ctx, store)

	line := []rune("show braid-")
	first, _ := c.Do(line, len(line))

	// New issue inside the cache window is not visible yet
	createTestIssues(t, ctx, store, 1)
	second, _ := c.Do(line, len(line))
	if len(second) != len(first) {
		t.Errorf("Expected cached IDs within TTL, got %d then %d", len(first), len(second))
	}
}
