// Package sqlite implements the query cache backend for braid.
//
// The database is derived state: every row is reconstructable by replaying
// the JSONL journal, so nothing here is authoritative except the atomic ID
// counter used while a cache is live.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/braidhq/braid/internal/storage"
	"github.com/braidhq/braid/internal/types"
)

// SQLiteStorage implements the storage.Storage interface using SQLite
type SQLiteStorage struct {
	db          *sql.DB
	issuePrefix string // Prefix for issue IDs (e.g., "braid-")
}

var _ storage.Storage = (*SQLiteStorage)(nil)
var _ storage.Importer = (*SQLiteStorage)(nil)

// New creates a new SQLite storage backend
func New(path string) (*SQLiteStorage, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Issue prefix comes from the database filename, e.g.
	// ".braid/myapp.db" → "myapp-". The config table may override it.
	prefix := "braid"
	if path != ":memory:" {
		filename := filepath.Base(path)
		prefix = strings.TrimSuffix(filename, filepath.Ext(filename))
	}
	issuePrefix := prefix + "-"

	// WAL mode for better concurrency between one-shot CLI invocations
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each pooled connection to :memory: would get its own empty database,
	// so in-memory mode must stay on a single connection.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	var configPrefix string
	err = db.QueryRow("SELECT value FROM config WHERE key = ?", "issue_prefix").Scan(&configPrefix)
	if err == nil && configPrefix != "" {
		issuePrefix = configPrefix + "-"
	} else if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to read issue_prefix from config: %w", err)
	}

	return &SQLiteStorage{
		db:          db,
		issuePrefix: issuePrefix,
	}, nil
}

// CreateIssue creates a new issue
func (s *SQLiteStorage) CreateIssue(ctx context.Context, issue *types.Issue, actor string) error {
	// Timestamps are always UTC: DATETIME columns lose timezone info
	now := time.Now().UTC()
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = now
	} else {
		issue.CreatedAt = issue.CreatedAt.UTC()
	}
	issue.UpdatedAt = now
	issue.SetDefaults()

	if err := issue.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	// Acquire a dedicated connection for the transaction. We need raw
	// "BEGIN IMMEDIATE" / "COMMIT" on a single connection, and database/sql's
	// pool would otherwise spread statements across connections.
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	// IMMEDIATE acquires the write lock up front, serializing ID generation
	// across concurrent writers. BeginTx can't express this (the sqlite3
	// driver always uses DEFERRED), hence raw Exec.
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("failed to begin immediate transaction: %w", err)
	}

	// Use context.Background() for ROLLBACK so cleanup survives a canceled ctx
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if issue.ID == "" {
		prefix := strings.TrimSuffix(s.issuePrefix, "-")

		// Atomically initialize the counter from existing issue IDs (covers
		// caches rebuilt from a journal, where the counter table starts
		// empty) and bump it. RETURNING yields the allocated value.
		var nextID int
		err = conn.QueryRowContext(ctx, `
			INSERT INTO issue_counters (prefix, last_id)
			SELECT ?, COALESCE(MAX(CAST(substr(id, LENGTH(?) + 2) AS INTEGER)), 0) + 1
			FROM issues
			WHERE id LIKE ? || '-%'
			  AND substr(id, LENGTH(?) + 2) GLOB '[0-9]*'
			ON CONFLICT(prefix) DO UPDATE SET
				last_id = MAX(
					last_id,
					(SELECT COALESCE(MAX(CAST(substr(id, LENGTH(?) + 2) AS INTEGER)), 0)
					 FROM issues
					 WHERE id LIKE ? || '-%'
					   AND substr(id, LENGTH(?) + 2) GLOB '[0-9]*')
				) + 1
			RETURNING last_id
		`, prefix, prefix, prefix, prefix, prefix, prefix, prefix).Scan(&nextID)
		if err != nil {
			return fmt.Errorf("failed to generate next ID for prefix %s: %w", prefix, err)
		}

		issue.ID = fmt.Sprintf("%s-%d", prefix, nextID)
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO issues (
			id, title, description, notes, status, priority, issue_type,
			assignee, estimated_minutes, created_at, updated_at, closed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		issue.ID, issue.Title, issue.Description, issue.Notes,
		issue.Status, issue.Priority, issue.IssueType,
		nullString(issue.Assignee), nullIntPtr(issue.EstimatedMinutes),
		issue.CreatedAt, issue.UpdatedAt, issue.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert issue: %w", err)
	}

	for _, label := range issue.Labels {
		if _, err := conn.ExecContext(ctx, `
			INSERT OR IGNORE INTO labels (issue_id, label) VALUES (?, ?)
		`, issue.ID, label); err != nil {
			return fmt.Errorf("failed to insert label: %w", err)
		}
	}

	eventData, _ := json.Marshal(issue)
	_, err = conn.ExecContext(ctx, `
		INSERT INTO events (issue_id, event_type, actor, new_value)
		VALUES (?, ?, ?, ?)
	`, issue.ID, types.EventCreated, actor, string(eventData))
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	return nil
}

// GetIssue retrieves an issue by ID with labels hydrated.
// Returns (nil, nil) when the issue does not exist.
func (s *SQLiteStorage) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	var issue types.Issue
	var closedAt sql.NullTime
	var estimatedMinutes sql.NullInt64
	var assignee sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, notes, status, priority, issue_type,
		       assignee, estimated_minutes, created_at, updated_at, closed_at
		FROM issues
		WHERE id = ?
	`, id).Scan(
		&issue.ID, &issue.Title, &issue.Description, &issue.Notes,
		&issue.Status, &issue.Priority, &issue.IssueType,
		&assignee, &estimatedMinutes,
		&issue.CreatedAt, &issue.UpdatedAt, &closedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}

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

	labels, err := s.GetLabels(ctx, issue.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get labels: %w", err)
	}
	issue.Labels = labels

	return &issue, nil
}

// Allowed fields for update to prevent SQL injection
var allowedUpdateFields = map[string]bool{
	"status":            true,
	"priority":          true,
	"title":             true,
	"assignee":          true,
	"description":       true,
	"notes":             true,
	"issue_type":        true,
	"estimated_minutes": true,
}

// UpdateIssue updates fields on an issue
func (s *SQLiteStorage) UpdateIssue(ctx context.Context, id string, updates map[string]interface{}, actor string) error {
	oldIssue, err := s.GetIssue(ctx, id)
	if err != nil {
		return err
	}
	if oldIssue == nil {
		return fmt.Errorf("issue %s: %w", id, storage.ErrNotFound)
	}

	setClauses := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}

	for key, value := range updates {
		if !allowedUpdateFields[key] {
			return fmt.Errorf("invalid field for update: %s", key)
		}

		switch key {
		case "priority":
			if priority, ok := value.(int); ok {
				if priority < 0 || priority > 4 {
					return fmt.Errorf("priority must be between 0 and 4 (got %d)", priority)
				}
			}
		case "status":
			if status, ok := value.(string); ok {
				if !types.Status(status).IsValid() {
					return fmt.Errorf("invalid status: %s", status)
				}
			}
		case "issue_type":
			if issueType, ok := value.(string); ok {
				if !types.IssueType(issueType).IsValid() {
					return fmt.Errorf("invalid issue type: %s", issueType)
				}
			}
		case "title":
			if title, ok := value.(string); ok {
				if len(title) == 0 || len(title) > 500 {
					return fmt.Errorf("title must be 1-500 characters")
				}
			}
		case "estimated_minutes":
			if mins, ok := value.(int); ok {
				if mins < 0 {
					return fmt.Errorf("estimated_minutes cannot be negative")
				}
			}
		case "assignee":
			// Clearing the assignee stores NULL, same as create, so
			// unassigned filters see one spelling
			if assignee, ok := value.(string); ok && assignee == "" {
				value = nil
			}
		}

		setClauses = append(setClauses, fmt.Sprintf("%s = ?", key))
		args = append(args, value)
	}

	// closed_at follows status: set on close, cleared on reopen
	setClauses, args = manageClosedAt(oldIssue, updates, setClauses, args)

	args = append(args, id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf("UPDATE issues SET %s WHERE id = ?", strings.Join(setClauses, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update issue: %w", err)
	}

	oldData, _ := json.Marshal(oldIssue)
	newData, _ := json.Marshal(updates)
	eventType := determineEventType(oldIssue, updates)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (issue_id, event_type, actor, old_value, new_value)
		VALUES (?, ?, ?, ?, ?)
	`, id, eventType, actor, string(oldData), string(newData))
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	return tx.Commit()
}

// CloseIssue closes an issue with a reason. Closing an already-closed issue
// is a no-op success, so retries and replayed journals converge on the same
// state instead of erroring.
func (s *SQLiteStorage) CloseIssue(ctx context.Context, id string, reason string, actor string) error {
	issue, err := s.GetIssue(ctx, id)
	if err != nil {
		return err
	}
	if issue == nil {
		return fmt.Errorf("issue %s: %w", id, storage.ErrNotFound)
	}
	if issue.Status == types.StatusClosed {
		return nil
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE issues SET status = ?, closed_at = ?, updated_at = ?
		WHERE id = ?
	`, types.StatusClosed, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to close issue: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (issue_id, event_type, actor, comment)
		VALUES (?, ?, ?, ?)
	`, id, types.EventClosed, actor, reason)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	return tx.Commit()
}

// SearchIssues finds issues matching query and filters
func (s *SQLiteStorage) SearchIssues(ctx context.Context, query string, filter types.IssueFilter) ([]*types.Issue, error) {
	whereClauses := []string{}
	args := []interface{}{}

	if query != "" {
		whereClauses = append(whereClauses, "(title LIKE ? OR description LIKE ? OR id LIKE ?)")
		pattern := "%" + query + "%"
		args = append(args, pattern, pattern, pattern)
	}

	if filter.Status != nil {
		whereClauses = append(whereClauses, "status = ?")
		args = append(args, *filter.Status)
	} else if filter.ExcludeClosed {
		// Filtering in SQL keeps LIMIT honest: closed issues must not
		// occupy slots in the limit window
		whereClauses = append(whereClauses, "status != ?")
		args = append(args, types.StatusClosed)
	}

	if filter.Priority != nil {
		whereClauses = append(whereClauses, "priority = ?")
		args = append(args, *filter.Priority)
	}

	if filter.IssueType != nil {
		whereClauses = append(whereClauses, "issue_type = ?")
		args = append(args, *filter.IssueType)
	}

	if filter.Assignee != nil {
		whereClauses = append(whereClauses, "assignee = ?")
		args = append(args, *filter.Assignee)
	}

	// Each label requires an EXISTS subquery so ALL labels must match
	for _, label := range filter.Labels {
		whereClauses = append(whereClauses, `
			EXISTS (
				SELECT 1 FROM labels l
				WHERE l.issue_id = issues.id AND l.label = ?
			)`)
		args = append(args, label)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = "WHERE " + strings.Join(whereClauses, " AND ")
	}

	limitSQL := ""
	if filter.Limit > 0 {
		limitSQL = fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	querySQL := fmt.Sprintf(`
		SELECT id, title, description, notes, status, priority, issue_type,
		       assignee, estimated_minutes, created_at, updated_at, closed_at
		FROM issues
		%s
		ORDER BY priority ASC, created_at ASC, id ASC
		%s
	`, whereSQL, limitSQL)

	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search issues: %w", err)
	}
	defer rows.Close()

	return scanIssues(rows)
}

// ImportIssue upserts a full issue snapshot during journal replay.
// Labels and outgoing dependency edges are replaced wholesale, and no audit
// events are recorded: a rebuilt cache must be a pure function of the journal,
// not of how many times it was imported.
func (s *SQLiteStorage) ImportIssue(ctx context.Context, issue *types.Issue, deps []*types.Dependency, actor string) error {
	issue.SetDefaults()
	if err := issue.Validate(); err != nil {
		return fmt.Errorf("validation failed for %s: %w", issue.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO issues (
			id, title, description, notes, status, priority, issue_type,
			assignee, estimated_minutes, created_at, updated_at, closed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			notes = excluded.notes,
			status = excluded.status,
			priority = excluded.priority,
			issue_type = excluded.issue_type,
			assignee = excluded.assignee,
			estimated_minutes = excluded.estimated_minutes,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			closed_at = excluded.closed_at
	`,
		issue.ID, issue.Title, issue.Description, issue.Notes,
		issue.Status, issue.Priority, issue.IssueType,
		nullString(issue.Assignee), nullIntPtr(issue.EstimatedMinutes),
		issue.CreatedAt.UTC(), issue.UpdatedAt.UTC(), utcTimePtr(issue.ClosedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert issue %s: %w", issue.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM labels WHERE issue_id = ?`, issue.ID); err != nil {
		return fmt.Errorf("failed to clear labels for %s: %w", issue.ID, err)
	}
	for _, label := range issue.Labels {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO labels (issue_id, label) VALUES (?, ?)
		`, issue.ID, label); err != nil {
			return fmt.Errorf("failed to insert label for %s: %w", issue.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE issue_id = ?`, issue.ID); err != nil {
		return fmt.Errorf("failed to clear dependencies for %s: %w", issue.ID, err)
	}
	for _, dep := range deps {
		if !dep.Type.IsValid() {
			return fmt.Errorf("invalid dependency type %q on %s", dep.Type, issue.ID)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO dependencies (issue_id, depends_on_id, type, created_at, created_by)
			VALUES (?, ?, ?, ?, ?)
		`, issue.ID, dep.DependsOnID, dep.Type, dep.CreatedAt.UTC(), dep.CreatedBy); err != nil {
			return fmt.Errorf("failed to insert dependency for %s: %w", issue.ID, err)
		}
	}

	return tx.Commit()
}

// GetConfig gets a configuration value from the config table
func (s *SQLiteStorage) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetConfig sets a configuration value in the config table
func (s *SQLiteStorage) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func manageClosedAt(oldIssue *types.Issue, updates map[string]interface{}, setClauses []string, args []interface{}) ([]string, []interface{}) {
	statusVal, hasStatus := updates["status"]
	if !hasStatus {
		return setClauses, args
	}

	var newStatus string
	switch v := statusVal.(type) {
	case string:
		newStatus = v
	case types.Status:
		newStatus = string(v)
	default:
		return setClauses, args
	}

	if newStatus == string(types.StatusClosed) && oldIssue.Status != types.StatusClosed {
		setClauses = append(setClauses, "closed_at = ?")
		args = append(args, time.Now().UTC())
	} else if newStatus != string(types.StatusClosed) && oldIssue.Status == types.StatusClosed {
		setClauses = append(setClauses, "closed_at = ?")
		args = append(args, nil)
	}

	return setClauses, args
}

func determineEventType(oldIssue *types.Issue, updates map[string]interface{}) types.EventType {
	statusVal, hasStatus := updates["status"]
	if !hasStatus {
		return types.EventUpdated
	}

	var newStatus string
	switch v := statusVal.(type) {
	case string:
		newStatus = v
	case types.Status:
		newStatus = string(v)
	default:
		return types.EventUpdated
	}

	if newStatus == string(types.StatusClosed) {
		return types.EventClosed
	}
	if oldIssue.Status == types.StatusClosed {
		return types.EventReopened
	}
	return types.EventStatusChanged
}

// scanIssues reads issue rows in the canonical column order
func scanIssues(rows *sql.Rows) ([]*types.Issue, error) {
	var issues []*types.Issue
	for rows.Next() {
		var issue types.Issue
		var closedAt sql.NullTime
		var estimatedMinutes sql.NullInt64
		var assignee sql.NullString

		err := rows.Scan(
			&issue.ID, &issue.Title, &issue.Description, &issue.Notes,
			&issue.Status, &issue.Priority, &issue.IssueType,
			&assignee, &estimatedMinutes,
			&issue.CreatedAt, &issue.UpdatedAt, &closedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}

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

		issues = append(issues, &issue)
	}
	return issues, rows.Err()
}

// Helper functions for nullable values
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullIntPtr(i *int) interface{} {
	if i == nil {
		return nil
	}
	return *i
}

func utcTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
