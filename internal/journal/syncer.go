package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/braidhq/braid/internal/storage"
)

// Syncer keeps the cache fresh against a journal that other tools may
// rewrite at any time (git checkout, pull, manual edits). Reads go through
// EnsureFresh, which re-imports the journal when its mtime has moved past
// the recorded sync marker.
type Syncer struct {
	store storage.Storage
	path  string

	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewSyncer creates a syncer for a journal path. An empty path (in-memory
// database with no journal) yields a syncer whose EnsureFresh is a no-op.
func NewSyncer(store storage.Storage, path string) *Syncer {
	return &Syncer{
		store: store,
		path:  path,
		// Stat-and-compare per command is cheap but not free; once per
		// second is plenty for interactive use.
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// EnsureFresh re-imports the journal if it changed since the last sync.
// Calls inside the rate window return immediately without checking, so a
// burst of queries pays the stat cost once.
func (s *Syncer) EnsureFresh(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.limiter.Allow() {
		return nil
	}

	stale, err := IsStale(ctx, s.store, s.path)
	if err != nil {
		return fmt.Errorf("staleness check failed: %w", err)
	}
	if !stale {
		return nil
	}

	if _, err := ImportFile(ctx, s.store, s.path); err != nil {
		return fmt.Errorf("auto-import failed: %w", err)
	}
	return nil
}

// Flush exports the cache to the journal. Mutating commands call this after
// every successful write so the journal never lags the cache across process
// exits.
func (s *Syncer) Flush(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return ExportToFile(ctx, s.store, s.path)
}
