// Package priorities derives default priorities for issues created in
// the context of existing work.
package priorities

import "github.com/braidhq/braid/internal/types"

// Inherit returns the default priority for a new issue linked to an
// existing issue of priority parentPriority by an edge of the given type.
//
// Inheritance rules:
// - blocks: escalate to P0 (the new issue stands between the parent and done)
// - discovered-from: parent priority + 1, capped at P3
// - related: default to P2
// - anything else: inherit the parent's priority unchanged
func Inherit(parentPriority int, depType types.DependencyType) int {
	switch depType {
	case types.DepBlocks:
		return 0

	case types.DepDiscoveredFrom:
		p := parentPriority + 1
		if p > 3 {
			return 3
		}
		return p

	case types.DepRelated:
		return 2

	default:
		return parentPriority
	}
}
