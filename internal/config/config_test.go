package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "priority", cfg.SortPolicy)
	assert.True(t, cfg.AutoImport)
	assert.True(t, cfg.AutoExport)
	assert.NotEmpty(t, cfg.Actor)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".braid"), 0755))

	content := []byte("issue_prefix: proj\nactor: alice\nsort_policy: hybrid\nauto_export: false\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".braid", "config.yaml"), content, 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "proj", cfg.IssuePrefix)
	assert.Equal(t, "alice", cfg.Actor)
	assert.Equal(t, "hybrid", cfg.SortPolicy)
	assert.False(t, cfg.AutoExport)
	// Absent keys keep defaults
	assert.True(t, cfg.AutoImport)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".braid"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".braid", "config.yaml"),
		[]byte("actor: alice\nsort_policy: oldest\n"), 0644))

	t.Setenv("BRAID_ACTOR", "bob")
	t.Setenv("BRAID_AUTO_IMPORT", "false")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "bob", cfg.Actor)
	assert.Equal(t, "oldest", cfg.SortPolicy)
	assert.False(t, cfg.AutoImport)
}

func TestLoadRejectsInvalidSortPolicy(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".braid"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".braid", "config.yaml"),
		[]byte("sort_policy: random\n"), 0644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".braid"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".braid", "config.yaml"),
		[]byte(":\n\t- broken"), 0644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := Default()
	cfg.IssuePrefix = "proj"
	cfg.Actor = "carol"
	require.NoError(t, cfg.Save(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "proj", loaded.IssuePrefix)
	assert.Equal(t, "carol", loaded.Actor)
}
