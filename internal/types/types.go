// Package types defines the core data structures for the braid issue tracker.
package types

import (
	"fmt"
	"time"
)

// Issue represents a trackable work item
type Issue struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	Status           Status     `json:"status"`
	Priority         int        `json:"priority"`
	IssueType        IssueType  `json:"issue_type"`
	Assignee         string     `json:"assignee,omitempty"`
	EstimatedMinutes *int       `json:"estimated_minutes,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`

	// Labels is populated on reads that hydrate the full issue (show, export).
	// List-style queries leave it nil to avoid N+1 lookups.
	Labels []string `json:"labels,omitempty"`
}

// Validate checks if the issue has valid field values
func (i *Issue) Validate() error {
	if len(i.Title) == 0 {
		return fmt.Errorf("title is required")
	}
	if len(i.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(i.Title))
	}
	if i.Priority < 0 || i.Priority > 4 {
		return fmt.Errorf("priority must be between 0 and 4 (got %d)", i.Priority)
	}
	if !i.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", i.Status)
	}
	if !i.IssueType.IsValid() {
		return fmt.Errorf("invalid issue type: %s", i.IssueType)
	}
	if i.EstimatedMinutes != nil && *i.EstimatedMinutes < 0 {
		return fmt.Errorf("estimated_minutes cannot be negative")
	}
	// closed_at is set if and only if the issue is closed
	if i.Status == StatusClosed && i.ClosedAt == nil {
		return fmt.Errorf("closed issues must have closed_at timestamp")
	}
	if i.Status != StatusClosed && i.ClosedAt != nil {
		return fmt.Errorf("non-closed issues cannot have closed_at timestamp")
	}
	return nil
}

// SetDefaults applies default values for fields omitted during journal import.
// Priority 0 is a valid value (P0), so it is never defaulted here; the default
// priority of 2 applies only to freshly created issues.
func (i *Issue) SetDefaults() {
	if i.Status == "" {
		i.Status = StatusOpen
	}
	if i.IssueType == "" {
		i.IssueType = TypeTask
	}
}

// Status represents the current state of an issue
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusClosed     Status = "closed"
)

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusBlocked, StatusClosed:
		return true
	}
	return false
}

// IssueType categorizes the kind of work
type IssueType string

const (
	TypeBug     IssueType = "bug"
	TypeFeature IssueType = "feature"
	TypeTask    IssueType = "task"
	TypeEpic    IssueType = "epic"
	TypeChore   IssueType = "chore"
)

// IsValid checks if the issue type value is valid
func (t IssueType) IsValid() bool {
	switch t {
	case TypeBug, TypeFeature, TypeTask, TypeEpic, TypeChore:
		return true
	}
	return false
}

// Dependency represents a typed directed relationship between issues.
// The edge reads "IssueID depends on DependsOnID"; for blocks edges that
// means DependsOnID blocks IssueID.
type Dependency struct {
	IssueID     string         `json:"issue_id"`
	DependsOnID string         `json:"depends_on_id"`
	Type        DependencyType `json:"type"`
	CreatedAt   time.Time      `json:"created_at"`
	CreatedBy   string         `json:"created_by,omitempty"`
}

// DependencyType categorizes the relationship between issues
type DependencyType string

const (
	// DepBlocks indicates the issue is blocked by another issue
	DepBlocks DependencyType = "blocks"
	// DepRelated indicates the issue is related to another issue
	DepRelated DependencyType = "related"
	// DepParentChild indicates a parent-child relationship (epic to tasks)
	DepParentChild DependencyType = "parent-child"
	// DepDiscoveredFrom indicates the issue was discovered during work on another issue
	DepDiscoveredFrom DependencyType = "discovered-from"
)

// IsValid checks if the dependency type value is valid
func (d DependencyType) IsValid() bool {
	switch d {
	case DepBlocks, DepRelated, DepParentChild, DepDiscoveredFrom:
		return true
	}
	return false
}

// Hierarchical returns true for edge types that must stay acyclic.
// related and discovered-from are annotations and may form cycles harmlessly.
func (d DependencyType) Hierarchical() bool {
	return d == DepBlocks || d == DepParentChild
}

// Label represents a tag on an issue
type Label struct {
	IssueID string `json:"issue_id"`
	Label   string `json:"label"`
}

// Event represents an audit trail entry
type Event struct {
	ID        int64     `json:"id"`
	IssueID   string    `json:"issue_id"`
	EventType EventType `json:"event_type"`
	Actor     string    `json:"actor"`
	OldValue  *string   `json:"old_value,omitempty"`
	NewValue  *string   `json:"new_value,omitempty"`
	Comment   *string   `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EventType categorizes audit trail events
type EventType string

const (
	EventCreated           EventType = "created"
	EventUpdated           EventType = "updated"
	EventStatusChanged     EventType = "status_changed"
	EventCommented         EventType = "commented"
	EventClosed            EventType = "closed"
	EventReopened          EventType = "reopened"
	EventDependencyAdded   EventType = "dependency_added"
	EventDependencyRemoved EventType = "dependency_removed"
	EventLabelAdded        EventType = "label_added"
	EventLabelRemoved      EventType = "label_removed"
	EventImported          EventType = "imported"
)

// BlockedIssue extends Issue with blocking information
type BlockedIssue struct {
	Issue
	BlockedByCount int      `json:"blocked_by_count"`
	BlockedBy      []string `json:"blocked_by"`
}

// TreeNode represents a node in a dependency tree
type TreeNode struct {
	Issue
	Depth     int  `json:"depth"`
	Truncated bool `json:"truncated"`
}

// Statistics provides aggregate metrics
type Statistics struct {
	TotalIssues      int     `json:"total_issues"`
	OpenIssues       int     `json:"open_issues"`
	InProgressIssues int     `json:"in_progress_issues"`
	BlockedStatus    int     `json:"blocked_status_issues"`
	ClosedIssues     int     `json:"closed_issues"`
	BlockedIssues    int     `json:"blocked_issues"`
	ReadyIssues      int     `json:"ready_issues"`
	Dependencies     int     `json:"dependencies"`
	AverageLeadTime  float64 `json:"average_lead_time_hours"`
}

// IssueFilter is used to filter issue queries
type IssueFilter struct {
	Status        *Status
	Priority      *int
	IssueType     *IssueType
	Assignee      *string
	Labels        []string // AND semantics: issue must have ALL these labels
	ExcludeClosed bool     // ignored when Status is set
	Limit         int
}

// SortPolicy determines how ready work is ordered
type SortPolicy string

const (
	// SortPolicyPriority sorts by priority first, then creation date (default)
	SortPolicyPriority SortPolicy = "priority"

	// SortPolicyOldest sorts by creation date (oldest first), preventing starvation
	SortPolicyOldest SortPolicy = "oldest"

	// SortPolicyHybrid prioritizes recent issues by priority, older by age.
	// Recent = created within 48 hours.
	SortPolicyHybrid SortPolicy = "hybrid"
)

// IsValid checks if the sort policy value is valid
func (s SortPolicy) IsValid() bool {
	switch s {
	case SortPolicyPriority, SortPolicyOldest, SortPolicyHybrid, "":
		return true
	}
	return false
}

// WorkFilter is used to filter ready work queries
type WorkFilter struct {
	Priority   *int
	Assignee   *string
	Unassigned bool
	Labels     []string
	Limit      int
	SortPolicy SortPolicy
}
