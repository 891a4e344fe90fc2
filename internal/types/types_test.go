package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIssueValidate(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name    string
		issue   Issue
		wantErr string
	}{
		{
			name:  "valid open issue",
			issue: Issue{Title: "Fix parser", Status: StatusOpen, Priority: 2, IssueType: TypeBug},
		},
		{
			name:    "missing title",
			issue:   Issue{Status: StatusOpen, Priority: 2, IssueType: TypeBug},
			wantErr: "title is required",
		},
		{
			name:    "priority out of range",
			issue:   Issue{Title: "x", Status: StatusOpen, Priority: 5, IssueType: TypeTask},
			wantErr: "priority must be between 0 and 4",
		},
		{
			name:    "invalid status",
			issue:   Issue{Title: "x", Status: Status("done"), Priority: 2, IssueType: TypeTask},
			wantErr: "invalid status",
		},
		{
			name:    "invalid type",
			issue:   Issue{Title: "x", Status: StatusOpen, Priority: 2, IssueType: IssueType("tsak")},
			wantErr: "invalid issue type",
		},
		{
			name:    "closed without closed_at",
			issue:   Issue{Title: "x", Status: StatusClosed, Priority: 2, IssueType: TypeTask},
			wantErr: "closed issues must have closed_at",
		},
		{
			name:    "open with closed_at",
			issue:   Issue{Title: "x", Status: StatusOpen, Priority: 2, IssueType: TypeTask, ClosedAt: &now},
			wantErr: "non-closed issues cannot have closed_at",
		},
		{
			name:  "closed with closed_at",
			issue: Issue{Title: "x", Status: StatusClosed, Priority: 2, IssueType: TypeTask, ClosedAt: &now},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.issue.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestIssueSetDefaults(t *testing.T) {
	issue := Issue{Title: "x"}
	issue.SetDefaults()
	assert.Equal(t, StatusOpen, issue.Status)
	assert.Equal(t, TypeTask, issue.IssueType)

	// Explicit values survive
	issue = Issue{Title: "x", Status: StatusClosed, IssueType: TypeEpic}
	issue.SetDefaults()
	assert.Equal(t, StatusClosed, issue.Status)
	assert.Equal(t, TypeEpic, issue.IssueType)
}

func TestDependencyTypeHierarchical(t *testing.T) {
	assert.True(t, DepBlocks.Hierarchical())
	assert.True(t, DepParentChild.Hierarchical())
	assert.False(t, DepRelated.Hierarchical())
	assert.False(t, DepDiscoveredFrom.Hierarchical())
}

func TestDependencyTypeIsValid(t *testing.T) {
	for _, d := range []DependencyType{DepBlocks, DepRelated, DepParentChild, DepDiscoveredFrom} {
		assert.True(t, d.IsValid(), "expected %s to be valid", d)
	}
	assert.False(t, DependencyType("depends").IsValid())
	assert.False(t, DependencyType("").IsValid())
}

func TestSortPolicyIsValid(t *testing.T) {
	assert.True(t, SortPolicyPriority.IsValid())
	assert.True(t, SortPolicyOldest.IsValid())
	assert.True(t, SortPolicyHybrid.IsValid())
	assert.True(t, SortPolicy("").IsValid())
	assert.False(t, SortPolicy("random").IsValid())
}
