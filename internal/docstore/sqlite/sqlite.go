// Package sqlite implements docstore.Collection on an embedded SQLite file.
//
// It mirrors the CouchDB contract closely enough that the repositories cannot
// tell the two apart:
//   - every document has a revision "<generation>-<xid>"
//   - an update must carry the current revision, otherwise it is a conflict
//   - creating a document whose id already exists is a conflict
//   - AllDocs with keys returns rows in key order, with "not_found" rows for
//     missing keys
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite, so the binary builds without a C
// toolchain. The driver registers itself with database/sql under the name
// "sqlite" in its init() function.
//
// Use ":memory:" as the path for a throwaway database (tests).
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool that holds every collection.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/movielists.db"  → file-based database (persistent)
//   - ":memory:"            → in-memory database (lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// A single connection serialises writers and keeps ":memory:" databases
	// from being split across pool connections.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Collection returns a handle for the named collection. Collections share
// one table, so no setup is needed.
func (db *DB) Collection(name string) *Collection {
	return &Collection{db: db, name: name}
}

// migrate creates the documents table.
// CREATE TABLE IF NOT EXISTS makes it safe to run on every start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			rev        TEXT NOT NULL,
			body       TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (collection, id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}
	return nil
}
