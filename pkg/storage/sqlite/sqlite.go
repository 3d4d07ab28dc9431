// Package sqlite provides a SQLite-backed transcript store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kgourjau/BridgeAI/pkg/storage/sqldriver"
)

// Dialect is the SQLite flavour of the transcript schema.
var Dialect = sqldriver.Dialect{
	Name: "sqlite3",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS transcript_entries (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			request_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			role       TEXT NOT NULL,
			source     TEXT NOT NULL,
			message    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS transcript_entries_created_at ON transcript_entries (created_at)`,
	},
	Placeholder: func(int) string { return "?" },
}

// SQLiteDriver implements storage.Driver using SQLite.
type SQLiteDriver struct {
	*sqldriver.SQLDriver
}

// NewSQLiteDriver creates a new SQLite-backed store.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDriver(dbPath string) (*SQLiteDriver, error) {
	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty database,
	// and SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	sd, err := sqldriver.Open(context.Background(), db, Dialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteDriver{SQLDriver: sd}, nil
}
