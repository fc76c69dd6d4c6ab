// Package db provides the SQLite connection and schema for lightsd.
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
	// Light ledger - append-only history of what was shown on the hardware.
	// It is never read back into the arbitration slots.
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS light_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			light TEXT NOT NULL,
			active TEXT,
			payload TEXT,
			event_id TEXT,
			seq INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_light_ledger_ts ON light_ledger(timestamp);
		CREATE INDEX IF NOT EXISTS idx_light_ledger_light_ts ON light_ledger(light, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create light_ledger table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
