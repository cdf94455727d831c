// Package persistence provides SQLite-based storage for the local index.
package persistence

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"codeqa/pkg/logx"
)

// Open opens (creating if needed) the index database at dbPath and brings its
// schema up to date. Use ":memory:" for a throwaway database.
func Open(dbPath string) (*DatabaseOperations, error) {
	db, err := InitializeDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	logx.NewLogger("persistence").Info("📦 Database initialized: %s", dbPath)
	return NewDatabaseOperations(db), nil
}

// InitializeDatabase creates and initializes the SQLite database with the required schema.
// This function is idempotent and safe to call multiple times.
func InitializeDatabase(dbPath string) (*sql.DB, error) {
	// Open database connection with WAL mode and busy timeout
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for SQLite (single writer). This also keeps
	// an in-memory database alive across statements.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initializeSchemaWithMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}
