// Package sqldriver provides the database/sql transcript store shared by the
// SQLite and PostgreSQL drivers.
package sqldriver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kgourjau/BridgeAI/pkg/storage"
)

// Dialect captures what differs between the supported databases.
type Dialect struct {
	Name string

	// Schema holds the idempotent statements creating the transcript table.
	Schema []string

	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
}

const columns = "id, request_id, created_at, role, source, message"

// SQLDriver provides transcript operations over a *sql.DB.
// It is database-agnostic and can be embedded by specific drivers.
type SQLDriver struct {
	DB      *sql.DB
	Dialect Dialect
}

// Open wraps db and applies the dialect schema.
func Open(ctx context.Context, db *sql.DB, d Dialect) (*SQLDriver, error) {
	for _, stmt := range d.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return &SQLDriver{DB: db, Dialect: d}, nil
}

// Put inserts entries in a single transaction, preserving their order.
func (sd *SQLDriver) Put(ctx context.Context, entries ...*storage.Entry) error {
	for _, e := range entries {
		if e == nil {
			return storage.ErrNilEntry
		}
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := sd.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(
		"INSERT INTO transcript_entries (%s) VALUES (%s)",
		columns, sd.placeholders(6),
	)
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		_, err := stmt.ExecContext(ctx,
			e.ID, e.RequestID, e.Timestamp.UTC(), e.Role, e.Source, e.Message,
		)
		if err != nil {
			return fmt.Errorf("failed to insert entry %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entries: %w", err)
	}
	return nil
}

// Get retrieves an entry by ID.
func (sd *SQLDriver) Get(ctx context.Context, id string) (*storage.Entry, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM transcript_entries WHERE id = %s",
		columns, sd.Dialect.Placeholder(1),
	)

	e, err := scanEntry(sd.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry %s: %w", id, err)
	}
	return e, nil
}

// List returns the most recent limit entries, oldest first.
func (sd *SQLDriver) List(ctx context.Context, limit int) ([]*storage.Entry, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		query := fmt.Sprintf(
			"SELECT %s FROM transcript_entries ORDER BY seq DESC LIMIT %s",
			columns, sd.Dialect.Placeholder(1),
		)
		rows, err = sd.DB.QueryContext(ctx, query, limit)
	} else {
		query := fmt.Sprintf("SELECT %s FROM transcript_entries ORDER BY seq DESC", columns)
		rows, err = sd.DB.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []*storage.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// DeleteBefore removes entries older than cutoff.
func (sd *SQLDriver) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := "DELETE FROM transcript_entries WHERE created_at < " + sd.Dialect.Placeholder(1)

	res, err := sd.DB.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete entries: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted entries: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (sd *SQLDriver) Close() error {
	return sd.DB.Close()
}

func (sd *SQLDriver) placeholders(n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = sd.Dialect.Placeholder(i + 1)
	}
	return strings.Join(ps, ", ")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*storage.Entry, error) {
	var e storage.Entry
	if err := s.Scan(&e.ID, &e.RequestID, &e.Timestamp, &e.Role, &e.Source, &e.Message); err != nil {
		return nil, err
	}
	e.Timestamp = e.Timestamp.UTC()
	return &e, nil
}
