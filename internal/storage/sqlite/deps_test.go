package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/braidhq/braid/internal/storage"
	"github.com/braidhq/braid/internal/types"
)

func addDep(t *testing.T, store *SQLiteStorage, from, to string, depType types.DependencyType) {
	t.Helper()
	err := store.AddDependency(context.Background(), &types.Dependency{
		IssueID: from, DependsOnID: to, Type: depType,
	}, "test-actor")
	if err != nil {
		t.Fatalf("Failed to add %s dependency %s -> %s: %v", depType, from, to, err)
	}
}

func TestAddDependencyRejectsDanglingEndpoints(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	a := mustCreate(t, store, &types.Issue{Title: "A"})

	err := store.AddDependency(ctx, &types.Dependency{
		IssueID: a.ID, DependsOnID: "braid-999", Type: types.DepBlocks,
	}, "test-actor")
	if !errors.Is(err, storage.ErrDanglingReference) {
		t.Errorf("Expected ErrDanglingReference, got %v", err)
	}

	err = store.AddDependency(ctx, &types.Dependency{
		IssueID: "braid-999", DependsOnID: a.ID, Type: types.DepBlocks,
	}, "test-actor")
	if !errors.Is(err, storage.ErrDanglingReference) {
		t.Errorf("Expected ErrDanglingReference, got %v", err)
	}
}

func TestAddDependencyRejectsSelfEdge(t *testing.T) {
	store := setupTestDB(t)

	a := mustCreate(t, store, &types.Issue{Title: "A"})

	err := store.AddDependency(context.Background(), &types.Dependency{
		IssueID: a.ID, DependsOnID: a.ID, Type: types.DepBlocks,
	}, "test-actor")
	if !errors.Is(err, storage.ErrCycle) {
		t.Errorf("Expected ErrCycle for self-edge, got %v", err)
	}
}

func TestAddDependencyRejectsCycleAndLeavesGraphUnchanged(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	a := mustCreate(t, store, &types.Issue{Title: "A"})
	b := mustCreate(t, store, &types.Issue{Title: "B"})
	c := mustCreate(t, store, &types.Issue{Title: "C"})

	addDep(t, store, a.ID, b.ID, types.DepBlocks)
	addDep(t, store, b.ID, c.ID, types.DepBlocks)

	// C -> A would close the loop
	err := store.AddDependency(ctx, &types.Dependency{
		IssueID: c.ID, DependsOnID: a.ID, Type: types.DepBlocks,
	}, "test-actor")
	if !errors.Is(err, storage.ErrCycle) {
		t.Fatalf("Expected ErrCycle, got %v", err)
	}

	// The rejected edge must not be visible
	records, err := store.GetDependencyRecords(ctx, c.ID)
	if err != nil {
		t.Fatalf("Failed to get dependency records: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no outgoing edges on C after rejection, got %d", len(records))
	}

	all, err := store.GetAllDependencyRecords(ctx)
	if err != nil {
		t.Fatalf("Failed to get all records: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected graph unchanged with 2 edges, got %d", len(all))
	}

	cycles, err := store.DetectCycles(ctx)
	if err != nil {
		t.Fatalf("DetectCycles failed: %v", err)
	}
	if len(cycles) != 0 {
		t.Errorf("Expected no cycles, got %d", len(cycles))
	}
}

func TestTwoEdgeCycleKeepsFirstEdge(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	a := mustCreate(t, store, &types.Issue{Title: "A"})
	b := mustCreate(t, store, &types.Issue{Title: "B"})

	addDep(t, store, a.ID, b.ID, types.DepBlocks)

	err := store.AddDependency(ctx, &types.Dependency{
		IssueID: b.ID, DependsOnID: a.ID, Type: types.DepBlocks,
	}, "test-actor")
	if !errors.Is(err, storage.ErrCycle) {
		t.Fatalf("Expected ErrCycle, got %v", err)
	}

	records, err := store.GetDependencyRecords(ctx, a.ID)
	if err != nil {
		t.Fatalf("Failed to get dependency records: %v", err)
	}
	if len(records) != 1 || records[0].DependsOnID != b.ID {
		t.Errorf("Expected first edge A -> B intact, got %v", records)
	}
}

func TestMixedHierarchicalCycleIsRejected(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	a := mustCreate(t, store, &types.Issue{Title: "A"})
	b := mustCreate(t, store, &types.Issue{Title: "B"})

	addDep(t, store, a.ID, b.ID, types.DepBlocks)

	// blocks and parent-child share one acyclicity class, so closing the
	// loop with the other edge type is still a cycle
	err := store.AddDependency(ctx, &types.Dependency{
		IssueID: b.ID, DependsOnID: a.ID, Type: types.DepParentChild,
	}, "test-actor")
	if !errors.Is(err, storage.ErrCycle) {
		t.Fatalf("Expected ErrCycle for mixed blocks/parent-child loop, got %v", err)
	}

	all, err := store.GetAllDependencyRecords(ctx)
	if err != nil {
		t.Fatalf("Failed to get all records: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected only the original edge after rejection, got %d", len(all))
	}
}

func TestRelatedEdgesMayFormCycles(t *testing.T) {
	store := setupTestDB(t)

	a := mustCreate(t, store, &types.Issue{Title: "A"})
	b := mustCreate(t, store, &types.Issue{Title: "B"})

	// Annotation edges are not part of the acyclicity class
	addDep(t, store, a.ID, b.ID, types.DepRelated)
	addDep(t, store, b.ID, a.ID, types.DepRelated)
	addDep(t, store, a.ID, b.ID, types.DepDiscoveredFrom)
	addDep(t, store, b.ID, a.ID, types.DepDiscoveredFrom)

	cycles, err := store.DetectCycles(context.Background())
	if err != nil {
		t.Fatalf("DetectCycles failed: %v", err)
	}
	if len(cycles) != 0 {
		t.Errorf("Expected annotation cycles to be ignored, got %d", len(cycles))
	}
}

func TestSamePairDifferentTypesCoexist(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	a := mustCreate(t, store, &types.Issue{Title: "A"})
	b := mustCreate(t, store, &types.Issue{Title: "B"})

	addDep(t, store, a.ID, b.ID, types.DepBlocks)
	addDep(t, store, a.ID, b.ID, types.DepRelated)

	records, err := store.GetDependencyRecords(ctx, a.ID)
	if err != nil {
		t.Fatalf("Failed to get dependency records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 edges between the pair, got %d", len(records))
	}

	// Removing the related edge leaves the blocks edge in place
	err = store.RemoveDependency(ctx, a.ID, b.ID, types.DepRelated, "test-actor")
	if err != nil {
		t.Fatalf("Failed to remove related edge: %v", err)
	}

	records, err = store.GetDependencyRecords(ctx, a.ID)
	if err != nil {
		t.Fatalf("Failed to get dependency records: %v", err)
	}
	if len(records) != 1 || records[0].Type != types.DepBlocks {
		t.Errorf("Expected only blocks edge to remain, got %v", records)
	}
}

func TestRemoveDependencyMissingEdge(t *testing.T) {
	store := setupTestDB(t)

	a := mustCreate(t, store, &types.Issue{Title: "A"})
	b := mustCreate(t, store, &types.Issue{Title: "B"})

	err := store.RemoveDependency(context.Background(), a.ID, b.ID, types.DepBlocks, "test-actor")
	if !errors.Is(err, storage.ErrDependencyNotFound) {
		t.Errorf("Expected ErrDependencyNotFound, got %v", err)
	}
}

func TestAddDependencyDuplicateIsNoOp(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	a := mustCreate(t, store, &types.Issue{Title: "A"})
	b := mustCreate(t, store, &types.Issue{Title: "B"})

	addDep(t, store, a.ID, b.ID, types.DepBlocks)
	addDep(t, store, a.ID, b.ID, types.DepBlocks)

	records, err := store.GetDependencyRecords(ctx, a.ID)
	if err != nil {
		t.Fatalf("Failed to get dependency records: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected 1 edge after duplicate add, got %d", len(records))
	}

	events, err := store.GetEvents(ctx, a.ID, 100)
	if err != nil {
		t.Fatalf("Failed to get events: %v", err)
	}
	depEvents := 0
	for _, e := range events {
		if e.EventType == types.EventDependencyAdded {
			depEvents++
		}
	}
	if depEvents != 1 {
		t.Errorf("Expected 1 dependency_added event, got %d", depEvents)
	}
}

func TestGetDependenciesAndDependents(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	a := mustCreate(t, store, &types.Issue{Title: "A"})
	b := mustCreate(t, store, &types.Issue{Title: "B"})
	c := mustCreate(t, store, &types.Issue{Title: "C"})

	addDep(t, store, a.ID, b.ID, types.DepBlocks)
	addDep(t, store, c.ID, b.ID, types.DepParentChild)

	deps, err := store.GetDependencies(ctx, a.ID)
	if err != nil {
		t.Fatalf("Failed to get dependencies: %v", err)
	}
	if len(deps) != 1 || deps[0].ID != b.ID {
		t.Errorf("Expected A to depend on B, got %v", deps)
	}

	dependents, err := store.GetDependents(ctx, b.ID)
	if err != nil {
		t.Fatalf("Failed to get dependents: %v", err)
	}
	if len(dependents) != 2 {
		t.Errorf("Expected 2 dependents of B, got %d", len(dependents))
	}
}

func TestGetDependencyTreeTruncatesRevisited(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	// Diamond: A -> B, A -> C, B -> D, C -> D
	a := mustCreate(t, store, &types.Issue{Title: "A"})
	b := mustCreate(t, store, &types.Issue{Title: "B"})
	c := mustCreate(t, store, &types.Issue{Title: "C"})
	d := mustCreate(t, store, &types.Issue{Title: "D"})

	addDep(t, store, a.ID, b.ID, types.DepBlocks)
	addDep(t, store, a.ID, c.ID, types.DepBlocks)
	addDep(t, store, b.ID, d.ID, types.DepBlocks)
	addDep(t, store, c.ID, d.ID, types.DepBlocks)

	nodes, err := store.GetDependencyTree(ctx, a.ID, 10)
	if err != nil {
		t.Fatalf("Failed to get tree: %v", err)
	}

	expanded := 0
	truncated := 0
	for _, n := range nodes {
		if n.ID == d.ID {
			if n.Truncated {
				truncated++
			} else {
				expanded++
			}
		}
	}
	if expanded != 1 {
		t.Errorf("Expected D expanded exactly once, got %d", expanded)
	}
	if truncated != 1 {
		t.Errorf("Expected D truncated once on revisit, got %d", truncated)
	}
}

func TestGetDependencyTreeRespectsMaxDepth(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	a := mustCreate(t, store, &types.Issue{Title: "A"})
	b := mustCreate(t, store, &types.Issue{Title: "B"})
	c := mustCreate(t, store, &types.Issue{Title: "C"})

	addDep(t, store, a.ID, b.ID, types.DepBlocks)
	addDep(t, store, b.ID, c.ID, types.DepBlocks)

	nodes, err := store.GetDependencyTree(ctx, a.ID, 1)
	if err != nil {
		t.Fatalf("Failed to get tree: %v", err)
	}
	for _, n := range nodes {
		if n.ID == c.ID {
			t.Error("Expected C beyond maxDepth to be excluded")
		}
	}
}

func TestGetDependencyTreeMissingRoot(t *testing.T) {
	store := setupTestDB(t)

	_, err := store.GetDependencyTree(context.Background(), "braid-404", 5)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDetectCyclesReportsImportedCycle(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	// A cycle can only enter via import replay, never via AddDependency
	a := &types.Issue{ID: "braid-1", Title: "A", Status: types.StatusOpen}
	b := &types.Issue{ID: "braid-2", Title: "B", Status: types.StatusOpen}
	if err := store.ImportIssue(ctx, a, []*types.Dependency{
		{IssueID: "braid-1", DependsOnID: "braid-2", Type: types.DepBlocks},
	}, "import"); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if err := store.ImportIssue(ctx, b, []*types.Dependency{
		{IssueID: "braid-2", DependsOnID: "braid-1", Type: types.DepBlocks},
	}, "import"); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	cycles, err := store.DetectCycles(ctx)
	if err != nil {
		t.Fatalf("DetectCycles failed: %v", err)
	}
	if len(cycles) != 1 {
		t.Fatalf("Expected 1 cycle, got %d", len(cycles))
	}
	if len(cycles[0]) != 2 {
		t.Fatalf("Expected cycle of 2 issues, got %d", len(cycles[0]))
	}
	// Canonical form starts at the smallest ID
	if cycles[0][0].ID != "braid-1" {
		t.Errorf("Expected cycle to start at braid-1, got %s", cycles[0][0].ID)
	}
}

func TestReadyWorkUnblocksWhenBlockerCloses(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	// B blocks A: only B is ready until B closes
	a := mustCreate(t, store, &types.Issue{Title: "A", Priority: 1})
	b := mustCreate(t, store, &types.Issue{Title: "B", Priority: 2})
	addDep(t, store, a.ID, b.ID, types.DepBlocks)

	ready, err := store.GetReadyWork(ctx, types.WorkFilter{})
	if err != nil {
		t.Fatalf("GetReadyWork failed: %v", err)
	}
	if len(ready) != 1 || ready[0].ID != b.ID {
		t.Fatalf("Expected only B ready, got %v", issueIDs(ready))
	}

	blocked, err := store.GetBlockedIssues(ctx)
	if err != nil {
		t.Fatalf("GetBlockedIssues failed: %v", err)
	}
	if len(blocked) != 1 || blocked[0].ID != a.ID {
		t.Fatalf("Expected A blocked, got %d entries", len(blocked))
	}
	if blocked[0].BlockedByCount != 1 || blocked[0].BlockedBy[0] != b.ID {
		t.Errorf("Expected A blocked by B, got %v", blocked[0].BlockedBy)
	}

	if err := store.CloseIssue(ctx, b.ID, "done", "test-actor"); err != nil {
		t.Fatalf("Failed to close B: %v", err)
	}

	ready, err = store.GetReadyWork(ctx, types.WorkFilter{})
	if err != nil {
		t.Fatalf("GetReadyWork failed: %v", err)
	}
	if len(ready) != 1 || ready[0].ID != a.ID {
		t.Fatalf("Expected A ready after B closed, got %v", issueIDs(ready))
	}

	blocked, err = store.GetBlockedIssues(ctx)
	if err != nil {
		t.Fatalf("GetBlockedIssues failed: %v", err)
	}
	if len(blocked) != 0 {
		t.Errorf("Expected no blocked issues, got %d", len(blocked))
	}
}

func TestReadyWorkIgnoresNonBlockingEdges(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	a := mustCreate(t, store, &types.Issue{Title: "A"})
	b := mustCreate(t, store, &types.Issue{Title: "B"})
	c := mustCreate(t, store, &types.Issue{Title: "C"})
	d := mustCreate(t, store, &types.Issue{Title: "D"})

	addDep(t, store, a.ID, b.ID, types.DepRelated)
	addDep(t, store, a.ID, c.ID, types.DepParentChild)
	addDep(t, store, a.ID, d.ID, types.DepDiscoveredFrom)

	ready, err := store.GetReadyWork(ctx, types.WorkFilter{})
	if err != nil {
		t.Fatalf("GetReadyWork failed: %v", err)
	}
	if len(ready) != 4 {
		t.Errorf("Expected all 4 issues ready, got %v", issueIDs(ready))
	}
}

func TestReadyWorkExcludesNonOpenStatuses(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	mustCreate(t, store, &types.Issue{Title: "Open one"})
	inProgress := mustCreate(t, store, &types.Issue{Title: "Working"})
	if err := store.UpdateIssue(ctx, inProgress.ID, map[string]interface{}{"status": "in_progress"}, "test-actor"); err != nil {
		t.Fatalf("Failed to update: %v", err)
	}

	ready, err := store.GetReadyWork(ctx, types.WorkFilter{})
	if err != nil {
		t.Fatalf("GetReadyWork failed: %v", err)
	}
	if len(ready) != 1 {
		t.Errorf("Expected only the open issue ready, got %v", issueIDs(ready))
	}
}

func TestReadyWorkSortPolicies(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	low := mustCreate(t, store, &types.Issue{Title: "Low priority", Priority: 3})
	high := mustCreate(t, store, &types.Issue{Title: "High priority", Priority: 0})

	// priority policy: P0 first
	ready, err := store.GetReadyWork(ctx, types.WorkFilter{SortPolicy: types.SortPolicyPriority})
	if err != nil {
		t.Fatalf("GetReadyWork failed: %v", err)
	}
	if ready[0].ID != high.ID {
		t.Errorf("priority policy: expected %s first, got %s", high.ID, ready[0].ID)
	}

	// oldest policy: creation order regardless of priority
	ready, err = store.GetReadyWork(ctx, types.WorkFilter{SortPolicy: types.SortPolicyOldest})
	if err != nil {
		t.Fatalf("GetReadyWork failed: %v", err)
	}
	if ready[0].ID != low.ID {
		t.Errorf("oldest policy: expected %s first, got %s", low.ID, ready[0].ID)
	}

	// invalid policy is rejected
	_, err = store.GetReadyWork(ctx, types.WorkFilter{SortPolicy: "random"})
	if err == nil {
		t.Error("Expected error for invalid sort policy")
	}
}

func TestReadyWorkFilters(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	assigned := mustCreate(t, store, &types.Issue{Title: "Assigned", Assignee: "alice", Priority: 1})
	unassigned := mustCreate(t, store, &types.Issue{Title: "Unassigned", Priority: 1})
	if err := store.AddLabel(ctx, assigned.ID, "backend", "test-actor"); err != nil {
		t.Fatalf("Failed to add label: %v", err)
	}

	alice := "alice"
	ready, err := store.GetReadyWork(ctx, types.WorkFilter{Assignee: &alice})
	if err != nil {
		t.Fatalf("GetReadyWork failed: %v", err)
	}
	if len(ready) != 1 || ready[0].ID != assigned.ID {
		t.Errorf("Expected assignee filter to return %s, got %v", assigned.ID, issueIDs(ready))
	}

	ready, err = store.GetReadyWork(ctx, types.WorkFilter{Unassigned: true})
	if err != nil {
		t.Fatalf("GetReadyWork failed: %v", err)
	}
	if len(ready) != 1 || ready[0].ID != unassigned.ID {
		t.Errorf("Expected unassigned filter to return %s, got %v", unassigned.ID, issueIDs(ready))
	}

	ready, err = store.GetReadyWork(ctx, types.WorkFilter{Labels: []string{"backend"}})
	if err != nil {
		t.Fatalf("GetReadyWork failed: %v", err)
	}
	if len(ready) != 1 || ready[0].ID != assigned.ID {
		t.Errorf("Expected label filter to return %s, got %v", assigned.ID, issueIDs(ready))
	}

	ready, err = store.GetReadyWork(ctx, types.WorkFilter{Limit: 1})
	if err != nil {
		t.Fatalf("GetReadyWork failed: %v", err)
	}
	if len(ready) != 1 {
		t.Errorf("Expected limit to cap results at 1, got %d", len(ready))
	}
}

func issueIDs(issues []*types.Issue) []string {
	ids := make([]string, 0, len(issues))
	for _, i := range issues {
		ids = append(ids, i.ID)
	}
	return ids
}
