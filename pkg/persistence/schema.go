package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// CurrentSchemaVersion defines the current schema version for migration support.
const CurrentSchemaVersion = 2

// initializeSchemaWithMigrations ensures the database schema is at the current version.
func initializeSchemaWithMigrations(db *sql.DB) error {
	currentVersion, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// If database is empty (version 0), create fresh schema
	if currentVersion == 0 {
		return createSchema(db)
	}

	if currentVersion == CurrentSchemaVersion {
		return nil
	}
	if currentVersion > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", currentVersion, CurrentSchemaVersion)
	}

	return runMigrations(db, currentVersion, CurrentSchemaVersion)
}

// migrations maps a schema version to the step that upgrades the previous one.
//
//nolint:gochecknoglobals // static table
var migrations = map[int][]string{
	// Record which embedder produced each vector so switching embedders triggers a reindex.
	2: {
		"ALTER TABLE chunks ADD COLUMN embedding_model TEXT NOT NULL DEFAULT ''",
		"CREATE INDEX IF NOT EXISTS idx_chunks_model ON chunks(embedding_model)",
	},
}

// runMigrations applies each pending step and bumps the version after it.
func runMigrations(db *sql.DB, fromVersion, toVersion int) error {
	for version := fromVersion + 1; version <= toVersion; version++ {
		stmts, ok := migrations[version]
		if !ok {
			return fmt.Errorf("unknown migration version: %d", version)
		}
		if err := execAll(db, stmts); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}
		if err := setSchemaVersion(db, version); err != nil {
			return fmt.Errorf("failed to update schema version to %d: %w", version, err)
		}
	}
	return nil
}

func execAll(db *sql.DB, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("%s: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return strings.TrimSpace(stmt[:i])
	}
	return stmt
}

// schemaVersionDDL is shared by createSchema and GetSchemaVersion.
const schemaVersionDDL = `CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
)`

// createSchema creates the current schema on an empty database.
func createSchema(db *sql.DB) error {
	stmts := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		schemaVersionDDL,

		// One row per indexed file.
		`CREATE TABLE IF NOT EXISTS documents (
			path TEXT PRIMARY KEY,
			content_hash TEXT NOT NULL,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			modified_at TEXT NOT NULL,
			indexed_at TEXT NOT NULL
		)`,

		// Token-bounded chunks; embeddings are JSON arrays.
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL REFERENCES documents(path) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			text TEXT NOT NULL,
			embedding TEXT NOT NULL,
			embedding_model TEXT NOT NULL DEFAULT '',
			UNIQUE (path, seq)
		)`,

		"CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path)",
		"CREATE INDEX IF NOT EXISTS idx_chunks_model ON chunks(embedding_model)",
		"CREATE INDEX IF NOT EXISTS idx_documents_modified ON documents(modified_at)",
	}
	if err := execAll(db, stmts); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return setSchemaVersion(db, CurrentSchemaVersion)
}

// setSchemaVersion records the current schema version.
func setSchemaVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version); err != nil {
		return fmt.Errorf("database exec error: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the current schema version from the database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	if _, err := db.Exec(schemaVersionDDL); err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err := db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil // No version set yet
	}
	if err != nil {
		return 0, fmt.Errorf("schema version scan error: %w", err)
	}
	return version, nil
}
