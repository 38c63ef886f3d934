// Package db provides the SQLite connection and schema for huelink.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Commit ledger - one row per committed diff, append-only
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS commit_ledger (
			id TEXT PRIMARY KEY,
			bridge TEXT NOT NULL,
			light_id INTEGER NOT NULL,
			light_name TEXT,
			changes TEXT NOT NULL,
			success INTEGER NOT NULL,
			errors TEXT,
			timestamp INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_commit_ledger_ts ON commit_ledger(timestamp);
		CREATE INDEX IF NOT EXISTS idx_commit_ledger_light ON commit_ledger(bridge, light_id, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create commit_ledger table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
