package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// ExclusiveLock is the lock file format used to claim exclusive write access
// to a braid database for long-lived sessions (the repl). One-shot commands
// do not take the lock; SQLite's own locking serializes them.
type ExclusiveLock struct {
	Token     string    `json:"token"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
}

// AcquireExclusiveLock creates an exclusive lock file next to the database.
// Returns the lock file path for cleanup on shutdown.
func AcquireExclusiveLock(dbPath, version string) (lockPath string, err error) {
	lockPath = filepath.Join(filepath.Dir(dbPath), ".exclusive-lock")

	// A lock left behind by a dead process is stale and may be overwritten
	if data, err := os.ReadFile(lockPath); err == nil {
		var existing ExclusiveLock
		if json.Unmarshal(data, &existing) == nil {
			if isProcessAlive(existing.PID, existing.Hostname) {
				return "", fmt.Errorf("another braid session is already running (PID %d on %s, started %s): %w",
					existing.PID, existing.Hostname, existing.StartedAt.Format(time.RFC3339), ErrLocked)
			}
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}

	lock := ExclusiveLock{
		Token:     uuid.New().String(),
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now().UTC(),
		Version:   version,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}

	if err := os.WriteFile(lockPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to create exclusive lock: %w", err)
	}

	return lockPath, nil
}

// ReleaseExclusiveLock removes the exclusive lock file.
// Should be called on shutdown (use defer).
func ReleaseExclusiveLock(lockPath string) error {
	if lockPath == "" {
		return nil
	}
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// isProcessAlive reports whether the lock holder is still running.
// A lock taken on another host cannot be probed, so it is treated as live.
func isProcessAlive(pid int, hostname string) bool {
	ourHostname, err := os.Hostname()
	if err != nil || ourHostname != hostname {
		return true
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 checks existence without sending anything
	return proc.Signal(syscall.Signal(0)) == nil
}
