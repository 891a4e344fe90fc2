package priorities

import (
	"testing"

	"github.com/braidhq/braid/internal/types"
)

func TestInherit(t *testing.T) {
	tests := []struct {
		name           string
		parentPriority int
		depType        types.DependencyType
		want           int
	}{
		{"blocker of P0 parent stays P0", 0, types.DepBlocks, 0},
		{"blocker of P1 parent escalates to P0", 1, types.DepBlocks, 0},
		{"blocker of P3 parent escalates to P0", 3, types.DepBlocks, 0},

		{"discovered from P0 parent becomes P1", 0, types.DepDiscoveredFrom, 1},
		{"discovered from P1 parent becomes P2", 1, types.DepDiscoveredFrom, 2},
		{"discovered from P2 parent becomes P3", 2, types.DepDiscoveredFrom, 3},
		{"discovered from P3 parent capped at P3", 3, types.DepDiscoveredFrom, 3},

		{"related to P0 parent defaults to P2", 0, types.DepRelated, 2},
		{"related to P3 parent defaults to P2", 3, types.DepRelated, 2},

		{"child of P1 parent inherits P1", 1, types.DepParentChild, 1},
		{"child of P3 parent inherits P3", 3, types.DepParentChild, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Inherit(tt.parentPriority, tt.depType)
			if got != tt.want {
				t.Errorf("Inherit(%d, %q) = %d, want %d", tt.parentPriority, tt.depType, got, tt.want)
			}
		})
	}
}
