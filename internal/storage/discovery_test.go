package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverDatabaseEnvOverride(t *testing.T) {
	t.Setenv("BRAID_DB_PATH", ":memory:")

	path, err := DiscoverDatabase()
	require.NoError(t, err)
	assert.Equal(t, ":memory:", path)
}

func TestDiscoverDatabaseInDir(t *testing.T) {
	dir := t.TempDir()

	// No .braid directory
	_, err := discoverDatabaseInDir(dir)
	assert.ErrorContains(t, err, "no braid database found")

	// .braid with a database
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".braid"), 0755))
	dbPath := filepath.Join(dir, ".braid", "myproject.db")
	require.NoError(t, os.WriteFile(dbPath, nil, 0644))

	found, err := discoverDatabaseInDir(dir)
	require.NoError(t, err)
	assert.Equal(t, dbPath, found)
}

func TestInitProject(t *testing.T) {
	dir := t.TempDir()

	dbPath, err := InitProject(dir, "My App")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".braid", "my-app.db"), dbPath)

	// Journal and gitignore created
	assert.FileExists(t, filepath.Join(dir, ".braid", "issues.jsonl"))
	data, err := os.ReadFile(filepath.Join(dir, ".braid", ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "*.db")
}

func TestInitProjectDefaultsToDirName(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "widget")
	require.NoError(t, os.MkdirAll(sub, 0755))

	dbPath, err := InitProject(sub, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sub, ".braid", "widget.db"), dbPath)
}

func TestJournalPath(t *testing.T) {
	assert.Equal(t, "/tmp/x/.braid/issues.jsonl", JournalPath("/tmp/x/.braid/proj.db"))
	assert.Equal(t, "", JournalPath(":memory:"))
}

func TestExclusiveLockRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "braid.db")

	lockPath, err := AcquireExclusiveLock(dbPath, "1.0.0")
	require.NoError(t, err)
	assert.FileExists(t, lockPath)

	// Second acquisition fails while we hold it (our own PID is alive)
	_, err = AcquireExclusiveLock(dbPath, "1.0.0")
	assert.ErrorContains(t, err, "already running")

	require.NoError(t, ReleaseExclusiveLock(lockPath))
	assert.NoFileExists(t, lockPath)

	// Releasing twice is fine
	assert.NoError(t, ReleaseExclusiveLock(lockPath))
}
