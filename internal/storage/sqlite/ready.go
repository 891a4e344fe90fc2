package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/braidhq/braid/internal/types"
)

// GetReadyWork returns open issues with no open blockers, ordered by the
// requested sort policy. Only blocks edges gate readiness; related,
// parent-child and discovered-from edges are organizational and never
// hold work back.
func (s *SQLiteStorage) GetReadyWork(ctx context.Context, filter types.WorkFilter) ([]*types.Issue, error) {
	if !filter.SortPolicy.IsValid() {
		return nil, fmt.Errorf("invalid sort policy: %s", filter.SortPolicy)
	}

	whereClauses := []string{}
	args := []interface{}{}

	if filter.Priority != nil {
		whereClauses = append(whereClauses, "priority = ?")
		args = append(args, *filter.Priority)
	}

	if filter.Unassigned {
		whereClauses = append(whereClauses, "(assignee IS NULL OR assignee = '')")
	} else if filter.Assignee != nil {
		whereClauses = append(whereClauses, "assignee = ?")
		args = append(args, *filter.Assignee)
	}

	for _, label := range filter.Labels {
		whereClauses = append(whereClauses, `
			EXISTS (
				SELECT 1 FROM labels l
				WHERE l.issue_id = ready_issues.id AND l.label = ?
			)`)
		args = append(args, label)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = "WHERE " + strings.Join(whereClauses, " AND ")
	}

	// Every policy ends with id ASC so equal-rank issues come back in a
	// stable order across invocations.
	var orderSQL string
	switch filter.SortPolicy {
	case types.SortPolicyOldest:
		orderSQL = "ORDER BY created_at ASC, id ASC"
	case types.SortPolicyHybrid:
		// Issues created in the last 48 hours rank by priority; older
		// issues rank by age so they cannot starve behind a stream of
		// fresh high-priority work.
		orderSQL = `ORDER BY
			CASE WHEN created_at >= datetime('now', '-48 hours') THEN 0 ELSE 1 END ASC,
			CASE WHEN created_at >= datetime('now', '-48 hours') THEN priority ELSE 0 END ASC,
			created_at ASC,
			id ASC`
	default: // priority
		orderSQL = "ORDER BY priority ASC, created_at ASC, id ASC"
	}

	limitSQL := ""
	if filter.Limit > 0 {
		limitSQL = fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	querySQL := fmt.Sprintf(`
		SELECT id, title, description, notes, status, priority, issue_type,
		       assignee, estimated_minutes, created_at, updated_at, closed_at
		FROM ready_issues
		%s
		%s
		%s
	`, whereSQL, orderSQL, limitSQL)

	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get ready work: %w", err)
	}
	defer rows.Close()

	return scanIssues(rows)
}

// GetBlockedIssues returns non-closed issues that have at least one open
// blocks-type blocker, with the blocker IDs attached
func (s *SQLiteStorage) GetBlockedIssues(ctx context.Context) ([]*types.BlockedIssue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.title, i.description, i.notes, i.status, i.priority, i.issue_type,
		       i.assignee, i.estimated_minutes, i.created_at, i.updated_at, i.closed_at,
		       d.depends_on_id
		FROM issues i
		JOIN dependencies d ON d.issue_id = i.id
		JOIN issues blocker ON blocker.id = d.depends_on_id
		WHERE i.status != 'closed'
		  AND d.type = 'blocks'
		  AND blocker.status != 'closed'
		ORDER BY i.priority ASC, i.created_at ASC, i.id ASC, d.depends_on_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get blocked issues: %w", err)
	}
	defer rows.Close()

	// One row per (issue, blocker) pair; aggregate in order
	var blocked []*types.BlockedIssue
	byID := map[string]*types.BlockedIssue{}

	for rows.Next() {
		var issue types.Issue
		var closedAt sql.NullTime
		var estimatedMinutes sql.NullInt64
		var assignee sql.NullString
		var blockerID string

		err := rows.Scan(
			&issue.ID, &issue.Title, &issue.Description, &issue.Notes,
			&issue.Status, &issue.Priority, &issue.IssueType,
			&assignee, &estimatedMinutes,
			&issue.CreatedAt, &issue.UpdatedAt, &closedAt,
			&blockerID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan blocked issue: %w", err)
		}

		entry, ok := byID[issue.ID]
		if !ok {
			if closedAt.Valid {
				issue.ClosedAt = &closedAt.Time
			}
			if estimatedMinutes.Valid {
				mins := int(estimatedMinutes.Int64)
				issue.EstimatedMinutes = &mins
			}
			if assignee.Valid {
				issue.Assignee = assignee.String
			}
			entry = &types.BlockedIssue{Issue: issue}
			byID[issue.ID] = entry
			blocked = append(blocked, entry)
		}
		entry.BlockedBy = append(entry.BlockedBy, blockerID)
		entry.BlockedByCount++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return blocked, nil
}

// GetStatistics returns aggregate metrics for the whole tracker
func (s *SQLiteStorage) GetStatistics(ctx context.Context) (*types.Statistics, error) {
	stats := &types.Statistics{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'open' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'in_progress' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'blocked' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'closed' THEN 1 ELSE 0 END), 0)
		FROM issues
	`).Scan(&stats.TotalIssues, &stats.OpenIssues, &stats.InProgressIssues,
		&stats.BlockedStatus, &stats.ClosedIssues)
	if err != nil {
		return nil, fmt.Errorf("failed to count issues: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ready_issues`).Scan(&stats.ReadyIssues)
	if err != nil {
		return nil, fmt.Errorf("failed to count ready issues: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT i.id)
		FROM issues i
		JOIN dependencies d ON d.issue_id = i.id
		JOIN issues blocker ON blocker.id = d.depends_on_id
		WHERE i.status != 'closed'
		  AND d.type = 'blocks'
		  AND blocker.status != 'closed'
	`).Scan(&stats.BlockedIssues)
	if err != nil {
		return nil, fmt.Errorf("failed to count blocked issues: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dependencies`).Scan(&stats.Dependencies)
	if err != nil {
		return nil, fmt.Errorf("failed to count dependencies: %w", err)
	}

	// Lead time in hours, closed issues only
	var avgLeadTime sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT AVG((julianday(closed_at) - julianday(created_at)) * 24.0)
		FROM issues
		WHERE status = 'closed' AND closed_at IS NOT NULL
	`).Scan(&avgLeadTime)
	if err != nil {
		return nil, fmt.Errorf("failed to compute lead time: %w", err)
	}
	if avgLeadTime.Valid {
		stats.AverageLeadTime = avgLeadTime.Float64
	}

	return stats, nil
}
