package storage

import "errors"

// Sentinel errors returned by storage backends. Callers match with errors.Is.
var (
	// ErrNotFound indicates a referenced issue id does not exist.
	// Recoverable: returned to the caller, never fatal.
	ErrNotFound = errors.New("issue not found")

	// ErrCycle indicates a proposed dependency edge would close a cycle
	// among hierarchical (blocks / parent-child) edges. The graph is left
	// unchanged when this is returned.
	ErrCycle = errors.New("dependency cycle")

	// ErrDanglingReference indicates a dependency edge references an issue
	// that does not exist in the store.
	ErrDanglingReference = errors.New("dangling issue reference")

	// ErrDependencyNotFound indicates a remove was attempted on an edge
	// that is not present.
	ErrDependencyNotFound = errors.New("dependency not found")

	// ErrLocked indicates another live session holds the exclusive lock.
	ErrLocked = errors.New("tracker is locked by another session")
)
