package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireExclusiveLock(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "braid.db")

	lockPath, err := AcquireExclusiveLock(dbPath, "0.3.0")
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if lockPath != filepath.Join(dir, ".exclusive-lock") {
		t.Errorf("Unexpected lock path %s", lockPath)
	}

	// This process still holds the lock, so a second session must fail
	_, err = AcquireExclusiveLock(dbPath, "0.3.0")
	if !errors.Is(err, ErrLocked) {
		t.Errorf("Expected ErrLocked for held lock, got %v", err)
	}

	if err := ReleaseExclusiveLock(lockPath); err != nil {
		t.Fatalf("Failed to release lock: %v", err)
	}

	// Released lock can be re-acquired
	lockPath, err = AcquireExclusiveLock(dbPath, "0.3.0")
	if err != nil {
		t.Fatalf("Failed to re-acquire released lock: %v", err)
	}
	_ = ReleaseExclusiveLock(lockPath)
}

func TestAcquireExclusiveLockOverwritesStaleLock(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "braid.db")
	lockPath := filepath.Join(dir, ".exclusive-lock")

	hostname, err := os.Hostname()
	if err != nil {
		t.Fatalf("Failed to get hostname: %v", err)
	}

	// A lock held by a PID that cannot exist is stale
	stale := ExclusiveLock{
		Token:     "dead-session",
		PID:       1 << 30,
		Hostname:  hostname,
		StartedAt: time.Now().UTC().Add(-time.Hour),
		Version:   "0.1.0",
	}
	data, err := json.Marshal(stale)
	if err != nil {
		t.Fatalf("Failed to marshal stale lock: %v", err)
	}
	if err := os.WriteFile(lockPath, data, 0644); err != nil {
		t.Fatalf("Failed to write stale lock: %v", err)
	}

	got, err := AcquireExclusiveLock(dbPath, "0.3.0")
	if err != nil {
		t.Fatalf("Expected stale lock to be overwritten, got %v", err)
	}
	_ = ReleaseExclusiveLock(got)
}

func TestReleaseExclusiveLockMissingFile(t *testing.T) {
	if err := ReleaseExclusiveLock(filepath.Join(t.TempDir(), ".exclusive-lock")); err != nil {
		t.Errorf("Expected releasing a missing lock to succeed, got %v", err)
	}
	if err := ReleaseExclusiveLock(""); err != nil {
		t.Errorf("Expected releasing an empty path to succeed, got %v", err)
	}
}
