// Package dbopen centralizes how every entity opens its private
// SQLite store, matching the pragmas and pool sizing in
// internal/memory/db.go (NewMemoryDB): WAL journal mode, a 5s busy
// timeout so concurrent-but-serialized access across the process
// doesn't spuriously fail, and foreign keys on.
package dbopen

import (
	"database/sql"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Open creates the parent directory for path if needed and opens a
// SQLite database with the standard connection-string pragmas, then
// applies schemaSQL with CREATE TABLE IF NOT EXISTS semantics so cold
// starts are idempotent.
func Open(path string, schemaSQL string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema to %s: %w", path, err)
	}

	return db, nil
}

// SafeFileName turns an arbitrary keyed-entity name (a resource path
// like "src/server", a repo id, an agent id) into a filesystem-safe
// SQLite filename, the same way internal/memory/db.go's
// generateRepoID/hashString turn a git remote or base path into a
// stable short id.
func SafeFileName(name string) string {
	h := sha256.Sum256([]byte(name))
	return fmt.Sprintf("%x", h)[:16]
}
