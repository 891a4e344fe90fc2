package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/braidhq/braid/internal/storage"
	"github.com/braidhq/braid/internal/types"
)

// AddDependency creates a typed edge "dep.IssueID depends on dep.DependsOnID".
// Both endpoints must exist, self-edges are rejected, and for hierarchical
// edge types (blocks, parent-child) the insert is rolled back if it would
// close a cycle within that type's class.
func (s *SQLiteStorage) AddDependency(ctx context.Context, dep *types.Dependency, actor string) error {
	if !dep.Type.IsValid() {
		return fmt.Errorf("invalid dependency type: %s", dep.Type)
	}
	if dep.IssueID == dep.DependsOnID {
		return fmt.Errorf("issue %s cannot depend on itself: %w", dep.IssueID, storage.ErrCycle)
	}

	// Both endpoints must exist before the edge goes in
	for _, id := range []string{dep.IssueID, dep.DependsOnID} {
		issue, err := s.GetIssue(ctx, id)
		if err != nil {
			return err
		}
		if issue == nil {
			return fmt.Errorf("issue %s: %w", id, storage.ErrDanglingReference)
		}
	}

	if dep.CreatedAt.IsZero() {
		dep.CreatedAt = time.Now().UTC()
	} else {
		dep.CreatedAt = dep.CreatedAt.UTC()
	}
	if dep.CreatedBy == "" {
		dep.CreatedBy = actor
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO dependencies (issue_id, depends_on_id, type, created_at, created_by)
		VALUES (?, ?, ?, ?, ?)
	`, dep.IssueID, dep.DependsOnID, dep.Type, dep.CreatedAt, dep.CreatedBy)
	if err != nil {
		return fmt.Errorf("failed to insert dependency: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Edge already present; adding it again is a no-op
		return nil
	}

	// Cycle check runs inside the transaction so a bad edge never becomes
	// visible: the rollback in the deferred handler undoes the insert.
	if dep.Type.Hierarchical() {
		cyclic, err := hasCycleInClass(ctx, tx, dep.IssueID)
		if err != nil {
			return fmt.Errorf("cycle check failed: %w", err)
		}
		if cyclic {
			return fmt.Errorf("dependency %s -> %s (%s) would create a cycle: %w",
				dep.IssueID, dep.DependsOnID, dep.Type, storage.ErrCycle)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (issue_id, event_type, actor, new_value)
		VALUES (?, ?, ?, ?)
	`, dep.IssueID, types.EventDependencyAdded, actor,
		fmt.Sprintf("%s -> %s (%s)", dep.IssueID, dep.DependsOnID, dep.Type))
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	return tx.Commit()
}

// hasCycleInClass reports whether issueID can reach itself by following
// hierarchical edges (blocks and parent-child share one acyclicity class).
func hasCycleInClass(ctx context.Context, tx *sql.Tx, issueID string) (bool, error) {
	var found int
	err := tx.QueryRowContext(ctx, `
		WITH RECURSIVE reachable(id) AS (
			SELECT depends_on_id FROM dependencies
			WHERE issue_id = ? AND type IN ('blocks', 'parent-child')
			UNION
			SELECT d.depends_on_id FROM dependencies d
			JOIN reachable r ON d.issue_id = r.id
			WHERE d.type IN ('blocks', 'parent-child')
		)
		SELECT COUNT(*) FROM reachable WHERE id = ?
	`, issueID, issueID).Scan(&found)
	if err != nil {
		return false, err
	}
	return found > 0, nil
}

// RemoveDependency removes a specific typed edge. The type is part of the
// edge identity, so removing a blocks edge leaves a related edge between the
// same pair intact.
func (s *SQLiteStorage) RemoveDependency(ctx context.Context, issueID, dependsOnID string, depType types.DependencyType, actor string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		DELETE FROM dependencies
		WHERE issue_id = ? AND depends_on_id = ? AND type = ?
	`, issueID, dependsOnID, depType)
	if err != nil {
		return fmt.Errorf("failed to remove dependency: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("dependency %s -> %s (%s): %w", issueID, dependsOnID, depType, storage.ErrDependencyNotFound)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (issue_id, event_type, actor, old_value)
		VALUES (?, ?, ?, ?)
	`, issueID, types.EventDependencyRemoved, actor,
		fmt.Sprintf("%s -> %s (%s)", issueID, dependsOnID, depType))
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	return tx.Commit()
}

// GetDependencies returns the issues that issueID depends on (any edge type)
func (s *SQLiteStorage) GetDependencies(ctx context.Context, issueID string) ([]*types.Issue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.title, i.description, i.notes, i.status, i.priority, i.issue_type,
		       i.assignee, i.estimated_minutes, i.created_at, i.updated_at, i.closed_at
		FROM issues i
		JOIN dependencies d ON i.id = d.depends_on_id
		WHERE d.issue_id = ?
		ORDER BY i.id ASC
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependencies: %w", err)
	}
	defer rows.Close()

	return scanIssues(rows)
}

// GetDependents returns the issues that depend on issueID (any edge type)
func (s *SQLiteStorage) GetDependents(ctx context.Context, issueID string) ([]*types.Issue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.title, i.description, i.notes, i.status, i.priority, i.issue_type,
		       i.assignee, i.estimated_minutes, i.created_at, i.updated_at, i.closed_at
		FROM issues i
		JOIN dependencies d ON i.id = d.issue_id
		WHERE d.depends_on_id = ?
		ORDER BY i.id ASC
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependents: %w", err)
	}
	defer rows.Close()

	return scanIssues(rows)
}

// GetDependencyRecords returns the raw outgoing edges for an issue
func (s *SQLiteStorage) GetDependencyRecords(ctx context.Context, issueID string) ([]*types.Dependency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_id, depends_on_id, type, created_at, created_by
		FROM dependencies
		WHERE issue_id = ?
		ORDER BY depends_on_id ASC, type ASC
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependency records: %w", err)
	}
	defer rows.Close()

	return scanDependencies(rows)
}

// GetAllDependencyRecords returns every edge in the graph, ordered for
// deterministic export
func (s *SQLiteStorage) GetAllDependencyRecords(ctx context.Context) ([]*types.Dependency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_id, depends_on_id, type, created_at, created_by
		FROM dependencies
		ORDER BY issue_id ASC, depends_on_id ASC, type ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependency records: %w", err)
	}
	defer rows.Close()

	return scanDependencies(rows)
}

func scanDependencies(rows *sql.Rows) ([]*types.Dependency, error) {
	var deps []*types.Dependency
	for rows.Next() {
		var dep types.Dependency
		var createdBy sql.NullString
		if err := rows.Scan(&dep.IssueID, &dep.DependsOnID, &dep.Type, &dep.CreatedAt, &createdBy); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		if createdBy.Valid {
			dep.CreatedBy = createdBy.String
		}
		deps = append(deps, &dep)
	}
	return deps, rows.Err()
}

// GetDependencyTree walks the dependency graph breadth-first from issueID,
// down to maxDepth levels. Already-visited issues are re-emitted as Truncated
// nodes without re-expansion, so shared subtrees print once and diamond
// shapes cannot blow up the output.
func (s *SQLiteStorage) GetDependencyTree(ctx context.Context, issueID string, maxDepth int) ([]*types.TreeNode, error) {
	if maxDepth <= 0 {
		maxDepth = 50
	}

	root, err := s.GetIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, fmt.Errorf("issue %s: %w", issueID, storage.ErrNotFound)
	}

	type frame struct {
		id    string
		depth int
	}

	var nodes []*types.TreeNode
	visited := map[string]bool{}
	queue := []frame{{id: issueID, depth: 0}}

	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]

		issue, err := s.GetIssue(ctx, f.id)
		if err != nil {
			return nil, err
		}
		if issue == nil {
			continue
		}

		node := &types.TreeNode{Issue: *issue, Depth: f.depth}
		if visited[f.id] {
			node.Truncated = true
			nodes = append(nodes, node)
			continue
		}
		visited[f.id] = true
		nodes = append(nodes, node)

		if f.depth >= maxDepth {
			continue
		}

		rows, err := s.db.QueryContext(ctx, `
			SELECT depends_on_id FROM dependencies
			WHERE issue_id = ?
			ORDER BY depends_on_id ASC
		`, f.id)
		if err != nil {
			return nil, fmt.Errorf("failed to get tree children: %w", err)
		}
		var children []string
		for rows.Next() {
			var child string
			if err := rows.Scan(&child); err != nil {
				rows.Close()
				return nil, err
			}
			children = append(children, child)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}

		for _, child := range children {
			queue = append(queue, frame{id: child, depth: f.depth + 1})
		}
	}

	return nodes, nil
}

// DetectCycles finds cycles among hierarchical edges. Each cycle is reported
// once, canonicalized to start at its lexicographically smallest issue ID.
// A healthy graph returns an empty slice; cycles can only appear here if the
// database was modified outside AddDependency (hand-edited journal, partial
// import).
func (s *SQLiteStorage) DetectCycles(ctx context.Context) ([][]*types.Issue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_id, depends_on_id FROM dependencies
		WHERE type IN ('blocks', 'parent-child')
		ORDER BY issue_id ASC, depends_on_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load dependency edges: %w", err)
	}

	adj := map[string][]string{}
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			rows.Close()
			return nil, err
		}
		adj[from] = append(adj[from], to)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Iterative DFS with a coloring scheme: white (unseen), gray (on the
	// current path), black (fully explored). A gray-to-gray edge closes
	// a cycle; the path slice gives us the witness.
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	seen := map[string]bool{} // canonical cycle keys already reported

	var cycles [][]string
	var path []string

	var dfs func(node string)
	dfs = func(node string) {
		color[node] = gray
		path = append(path, node)
		for _, next := range adj[node] {
			switch color[next] {
			case white:
				dfs(next)
			case gray:
				// next is on the current path; slice out the cycle
				for i := len(path) - 1; i >= 0; i-- {
					if path[i] == next {
						cycle := append([]string(nil), path[i:]...)
						cycle = canonicalizeCycle(cycle)
						key := fmt.Sprintf("%v", cycle)
						if !seen[key] {
							seen[key] = true
							cycles = append(cycles, cycle)
						}
						break
					}
				}
			}
		}
		path = path[:len(path)-1]
		color[node] = black
	}

	var starts []string
	for node := range adj {
		starts = append(starts, node)
	}
	sort.Strings(starts)
	for _, node := range starts {
		if color[node] == white {
			dfs(node)
		}
	}

	var result [][]*types.Issue
	for _, cycle := range cycles {
		var issues []*types.Issue
		for _, id := range cycle {
			issue, err := s.GetIssue(ctx, id)
			if err != nil {
				return nil, err
			}
			if issue != nil {
				issues = append(issues, issue)
			}
		}
		result = append(result, issues)
	}
	return result, nil
}

// canonicalizeCycle rotates a cycle so it starts at its smallest member,
// giving a stable representation regardless of where DFS entered it.
func canonicalizeCycle(cycle []string) []string {
	if len(cycle) == 0 {
		return cycle
	}
	minIdx := 0
	for i, id := range cycle {
		if id < cycle[minIdx] {
			minIdx = i
		}
	}
	rotated := make([]string, 0, len(cycle))
	rotated = append(rotated, cycle[minIdx:]...)
	rotated = append(rotated, cycle[:minIdx]...)
	return rotated
}
