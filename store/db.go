// Package store persists call records to an embedded SQLite database and
// exposes the query surface (list, get, delete, stats) the process
// controller hands to the surrounding application.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "modernc.org/sqlite"
)

//go:embed migrations/0001_init.sql
var initSchema string

// DB wraps a SQLite connection with write-ahead logging enabled, per the
// durability assumption the call log depends on.
type DB struct {
	sql *sql.DB
}

// Open opens (creating if necessary) the SQLite file at path and applies
// the embedded schema.
func Open(ctx context.Context, path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, initSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &DB{sql: conn}, nil
}

// Close releases the underlying connection.
func (db *DB) Close() error {
	return db.sql.Close()
}
