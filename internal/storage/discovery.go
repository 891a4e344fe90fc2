package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiscoverDatabase looks for .braid/*.db in the current directory only.
// Returns the absolute path to the database file, or an error if not found.
//
// Only the current directory is checked, never parents: walking up the tree
// risks silently using an enclosing project's tracker when braid is run
// inside a nested checkout.
//
// The BRAID_DB_PATH environment variable takes precedence over discovery,
// which also gives tests a way to isolate themselves (":memory:" included).
func DiscoverDatabase() (string, error) {
	if dbPath := os.Getenv("BRAID_DB_PATH"); dbPath != "" {
		return dbPath, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	return discoverDatabaseInDir(dir)
}

// discoverDatabaseInDir checks for .braid/*.db in the specified directory only.
func discoverDatabaseInDir(dir string) (string, error) {
	braidDir := filepath.Join(dir, ".braid")

	if info, err := os.Stat(braidDir); err == nil && info.IsDir() {
		entries, err := os.ReadDir(braidDir)
		if err == nil {
			for _, entry := range entries {
				if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".db") {
					dbPath := filepath.Join(braidDir, entry.Name())
					absPath, err := filepath.Abs(dbPath)
					if err != nil {
						return "", fmt.Errorf("failed to get absolute path: %w", err)
					}
					return absPath, nil
				}
			}
		}
	}

	return "", fmt.Errorf("no braid database found in %s (run 'braid init' first)", dir)
}

// JournalPath returns the journal file path paired with a database path.
// The journal lives next to the database as issues.jsonl.
func JournalPath(dbPath string) string {
	if dbPath == ":memory:" {
		return ""
	}
	return filepath.Join(filepath.Dir(dbPath), "issues.jsonl")
}

// InitProject creates the .braid directory for a new project and returns the
// database path. The project name defaults to the directory name.
func InitProject(root, projectName string) (string, error) {
	if projectName == "" {
		projectName = filepath.Base(root)
	}
	// Normalize the name so it works as an issue prefix
	projectName = strings.ToLower(strings.ReplaceAll(projectName, " ", "-"))

	braidDir := filepath.Join(root, ".braid")
	if err := os.MkdirAll(braidDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create .braid directory: %w", err)
	}

	dbPath := filepath.Join(braidDir, projectName+".db")

	// The cache is derived state and must never be version-controlled;
	// the journal is the unit shared across collaborators.
	gitignore := filepath.Join(braidDir, ".gitignore")
	if _, err := os.Stat(gitignore); os.IsNotExist(err) {
		content := "*.db\n*.db-wal\n*.db-shm\n.exclusive-lock\n"
		if err := os.WriteFile(gitignore, []byte(content), 0644); err != nil {
			return "", fmt.Errorf("failed to write .gitignore: %w", err)
		}
	}

	// Touch the journal so a fresh project has something to commit
	journalPath := filepath.Join(braidDir, "issues.jsonl")
	if _, err := os.Stat(journalPath); os.IsNotExist(err) {
		if err := os.WriteFile(journalPath, nil, 0644); err != nil {
			return "", fmt.Errorf("failed to create journal: %w", err)
		}
	}

	return dbPath, nil
}
