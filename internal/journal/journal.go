// Package journal implements the durable JSONL log that backs the SQLite
// query cache.
//
// The journal is the source of truth: one canonical JSON record per issue,
// one record per line, sorted by issue ID. Labels and outgoing dependency
// edges are embedded in the record, so a single line carries everything
// needed to reconstruct that issue. Exports are deterministic: the same
// tracker state always serializes to byte-identical output, which keeps
// version-control diffs minimal and merges tractable.
package journal

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/braidhq/braid/internal/storage"
	"github.com/braidhq/braid/internal/types"
)

// Record is the canonical journal representation of one issue.
// Field order is fixed; labels and dependencies are sorted before marshal
// so that equal states produce equal bytes.
type Record struct {
	ID               string      `json:"id"`
	Title            string      `json:"title"`
	Description      string      `json:"description,omitempty"`
	Notes            string      `json:"notes,omitempty"`
	Status           string      `json:"status"`
	Priority         int         `json:"priority"`
	IssueType        string      `json:"issue_type"`
	Assignee         string      `json:"assignee,omitempty"`
	EstimatedMinutes *int        `json:"estimated_minutes,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
	ClosedAt         *time.Time  `json:"closed_at,omitempty"`
	Labels           []string    `json:"labels,omitempty"`
	Dependencies     []DepRecord `json:"dependencies,omitempty"`
}

// DepRecord is one outgoing edge embedded in a Record
type DepRecord struct {
	DependsOnID string    `json:"depends_on_id"`
	Type        string    `json:"type"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by,omitempty"`
}

// RecordFromIssue builds the canonical record for an issue and its
// outgoing edges
func RecordFromIssue(issue *types.Issue, deps []*types.Dependency) *Record {
	rec := &Record{
		ID:               issue.ID,
		Title:            issue.Title,
		Description:      issue.Description,
		Notes:            issue.Notes,
		Status:           string(issue.Status),
		Priority:         issue.Priority,
		IssueType:        string(issue.IssueType),
		Assignee:         issue.Assignee,
		EstimatedMinutes: issue.EstimatedMinutes,
		CreatedAt:        issue.CreatedAt.UTC(),
		UpdatedAt:        issue.UpdatedAt.UTC(),
	}
	if issue.ClosedAt != nil {
		t := issue.ClosedAt.UTC()
		rec.ClosedAt = &t
	}

	rec.Labels = append(rec.Labels, issue.Labels...)
	sort.Strings(rec.Labels)

	for _, dep := range deps {
		rec.Dependencies = append(rec.Dependencies, DepRecord{
			DependsOnID: dep.DependsOnID,
			Type:        string(dep.Type),
			CreatedAt:   dep.CreatedAt.UTC(),
			CreatedBy:   dep.CreatedBy,
		})
	}
	sort.Slice(rec.Dependencies, func(i, j int) bool {
		a, b := rec.Dependencies[i], rec.Dependencies[j]
		if a.DependsOnID != b.DependsOnID {
			return a.DependsOnID < b.DependsOnID
		}
		return a.Type < b.Type
	})

	return rec
}

// Issue converts the record back to an issue value
func (r *Record) Issue() *types.Issue {
	issue := &types.Issue{
		ID:               r.ID,
		Title:            r.Title,
		Description:      r.Description,
		Notes:            r.Notes,
		Status:           types.Status(r.Status),
		Priority:         r.Priority,
		IssueType:        types.IssueType(r.IssueType),
		Assignee:         r.Assignee,
		EstimatedMinutes: r.EstimatedMinutes,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		ClosedAt:         r.ClosedAt,
		Labels:           append([]string(nil), r.Labels...),
	}
	issue.SetDefaults()
	return issue
}

// DependencyRecords converts the embedded edges back to dependency values
func (r *Record) DependencyRecords() []*types.Dependency {
	var deps []*types.Dependency
	for _, d := range r.Dependencies {
		deps = append(deps, &types.Dependency{
			IssueID:     r.ID,
			DependsOnID: d.DependsOnID,
			Type:        types.DependencyType(d.Type),
			CreatedAt:   d.CreatedAt,
			CreatedBy:   d.CreatedBy,
		})
	}
	return deps
}

// MergeConflictError reports issue IDs that appear multiple times in a
// journal with divergent content. This typically means a version-control
// merge combined two histories; the conflict must be resolved by hand in
// the journal, never auto-resolved here.
type MergeConflictError struct {
	IDs []string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("journal contains conflicting records for: %s (resolve in the journal file and re-import)",
		strings.Join(e.IDs, ", "))
}

// ConflictMarkerError reports unresolved version-control conflict markers
// in the journal file
type ConflictMarkerError struct {
	Line int
}

func (e *ConflictMarkerError) Error() string {
	return fmt.Sprintf("journal contains unresolved merge conflict markers at line %d", e.Line)
}

// Export writes every issue as one canonical JSON line, sorted by ID
func Export(ctx context.Context, store storage.Storage, w io.Writer) error {
	issues, err := store.SearchIssues(ctx, "", types.IssueFilter{})
	if err != nil {
		return fmt.Errorf("failed to list issues: %w", err)
	}

	allDeps, err := store.GetAllDependencyRecords(ctx)
	if err != nil {
		return fmt.Errorf("failed to list dependencies: %w", err)
	}
	depsByIssue := map[string][]*types.Dependency{}
	for _, dep := range allDeps {
		depsByIssue[dep.IssueID] = append(depsByIssue[dep.IssueID], dep)
	}

	var records []*Record
	for _, issue := range issues {
		// List queries skip labels; hydrate the full issue
		full, err := store.GetIssue(ctx, issue.ID)
		if err != nil {
			return fmt.Errorf("failed to load issue %s: %w", issue.ID, err)
		}
		if full == nil {
			continue
		}
		records = append(records, RecordFromIssue(full, depsByIssue[issue.ID]))
	}

	sort.Slice(records, func(i, j int) bool {
		return lessID(records[i].ID, records[j].ID)
	})

	bw := bufio.NewWriter(w)
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record %s: %w", rec.ID, err)
		}
		if _, err := bw.Write(data); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ExportToFile writes the journal atomically: a temp file in the same
// directory is renamed over the target, so readers never see a partial
// journal. The sync marker is updated afterwards so the fresh export is
// not mistaken for an external edit.
func ExportToFile(ctx context.Context, store storage.Storage, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".journal-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp journal: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := Export(ctx, store, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp journal: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace journal: %w", err)
	}

	return markSynced(ctx, store, path)
}

// ImportResult summarizes a journal import
type ImportResult struct {
	Imported  int // records applied to the cache
	Collapsed int // duplicate identical records skipped
}

// Import replays a journal into the cache. Identical duplicate records for
// the same ID collapse to one; divergent duplicates abort with
// MergeConflictError before anything is written. Dependencies may reference
// any issue in the snapshot or already in the cache, independent of line
// order.
func Import(ctx context.Context, store storage.Storage, r io.Reader) (*ImportResult, error) {
	importer, ok := store.(storage.Importer)
	if !ok {
		return nil, fmt.Errorf("storage backend does not support journal import")
	}

	records, result, err := parse(r)
	if err != nil {
		return nil, err
	}

	inSnapshot := map[string]bool{}
	for _, rec := range records {
		inSnapshot[rec.ID] = true
	}

	// Validate edges before touching the cache
	for _, rec := range records {
		for _, d := range rec.Dependencies {
			if inSnapshot[d.DependsOnID] {
				continue
			}
			existing, err := store.GetIssue(ctx, d.DependsOnID)
			if err != nil {
				return nil, err
			}
			if existing == nil {
				return nil, fmt.Errorf("record %s depends on unknown issue %s: %w",
					rec.ID, d.DependsOnID, storage.ErrDanglingReference)
			}
		}
	}

	// Two passes so edges can point at issues defined later in the file:
	// first every issue, then every issue's edges.
	for _, rec := range records {
		if err := importer.ImportIssue(ctx, rec.Issue(), nil, "journal-import"); err != nil {
			return nil, fmt.Errorf("failed to import %s: %w", rec.ID, err)
		}
	}
	for _, rec := range records {
		if len(rec.Dependencies) == 0 {
			continue
		}
		if err := importer.ImportIssue(ctx, rec.Issue(), rec.DependencyRecords(), "journal-import"); err != nil {
			return nil, fmt.Errorf("failed to import dependencies for %s: %w", rec.ID, err)
		}
	}

	result.Imported = len(records)
	return result, nil
}

// ImportFile replays a journal file and records the sync marker
func ImportFile(ctx context.Context, store storage.Storage, path string) (*ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	result, err := Import(ctx, store, f)
	if err != nil {
		return nil, err
	}
	if err := markSynced(ctx, store, path); err != nil {
		return nil, err
	}
	return result, nil
}

// Verify parses a journal without applying it, reporting merge conflicts,
// conflict markers, and malformed lines
func Verify(r io.Reader) error {
	_, _, err := parse(r)
	return err
}

// parse reads journal lines into records, collapsing identical duplicates
// and detecting divergent ones
func parse(r io.Reader) ([]*Record, *ImportResult, error) {
	result := &ImportResult{}

	var records []*Record
	canonical := map[string][]byte{}
	var conflicts []string
	conflicted := map[string]bool{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if hasConflictMarker(line) {
			return nil, nil, &ConflictMarkerError{Line: lineNum}
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, nil, fmt.Errorf("invalid journal record at line %d: %w", lineNum, err)
		}
		if rec.ID == "" {
			return nil, nil, fmt.Errorf("journal record at line %d has no id", lineNum)
		}

		// Re-marshal for comparison so formatting differences between
		// semantically identical lines don't count as conflicts
		canon, err := json.Marshal(RecordFromIssue(rec.Issue(), rec.DependencyRecords()))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to canonicalize record %s: %w", rec.ID, err)
		}

		if prev, seen := canonical[rec.ID]; seen {
			if bytes.Equal(prev, canon) {
				result.Collapsed++
				continue
			}
			if !conflicted[rec.ID] {
				conflicted[rec.ID] = true
				conflicts = append(conflicts, rec.ID)
			}
			continue
		}

		canonical[rec.ID] = canon
		records = append(records, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read journal: %w", err)
	}

	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		return nil, nil, &MergeConflictError{IDs: conflicts}
	}

	return records, result, nil
}

func hasConflictMarker(line []byte) bool {
	return bytes.HasPrefix(line, []byte("<<<<<<<")) ||
		bytes.HasPrefix(line, []byte("=======")) ||
		bytes.HasPrefix(line, []byte(">>>>>>>"))
}

const syncMarkerKey = "journal_synced_at"

// markSynced stores the journal file's mtime so staleness checks can tell
// external edits apart from our own exports and imports
func markSynced(ctx context.Context, store storage.Storage, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat journal: %w", err)
	}
	return store.SetConfig(ctx, syncMarkerKey, info.ModTime().UTC().Format(time.RFC3339Nano))
}

// IsStale reports whether the journal file has changed since the cache
// last synced with it. A journal that exists but has never been synced
// counts as stale; a missing journal does not.
func IsStale(ctx context.Context, store storage.Storage, path string) (bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat journal: %w", err)
	}
	if info.Size() == 0 {
		return false, nil
	}

	marker, err := store.GetConfig(ctx, syncMarkerKey)
	if err != nil {
		return false, err
	}
	if marker == "" {
		return true, nil
	}
	syncedAt, err := time.Parse(time.RFC3339Nano, marker)
	if err != nil {
		return true, nil
	}
	return info.ModTime().UTC().After(syncedAt), nil
}

// lessID orders issue IDs so that numeric suffixes sort numerically:
// braid-2 before braid-10. IDs without a numeric suffix fall back to
// plain string order.
func lessID(a, b string) bool {
	ap, an, aok := splitID(a)
	bp, bn, bok := splitID(b)
	if aok && bok {
		if ap != bp {
			return ap < bp
		}
		return an < bn
	}
	return a < b
}

func splitID(id string) (prefix string, n int, ok bool) {
	i := strings.LastIndex(id, "-")
	if i < 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return "", 0, false
	}
	return id[:i], n, true
}
