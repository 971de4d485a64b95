// Package journal keeps each user's local history of engine operations in SQLite.
// The project tree never depends on it; it only answers "what did I do".
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/all-in-one-of/chasm-version-system/internal/chasm"
	"github.com/all-in-one-of/chasm-version-system/internal/journal/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteJournal implements chasm.Journal using SQLite.
type SQLiteJournal struct {
	db   *sql.DB
	path string
}

// NewSQLiteJournal opens (creating if needed) the journal at path and migrates it
// to the latest schema. path can be a file path or ":memory:".
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	switch err := migrations.Status(db); {
	case err == nil:
	case errors.Is(err, migrations.ErrBehind):
		if err := migrations.MigrateUp(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating journal: %w", err)
		}
	default:
		db.Close()
		return nil, fmt.Errorf("journal %s: %w", path, err)
	}

	return &SQLiteJournal{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection.
// An in-memory database is limited to one connection, since every connection
// would otherwise see its own empty database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// Record appends entry and sets its ID.
func (j *SQLiteJournal) Record(entry *chasm.JournalEntry) error {
	res, err := j.db.Exec(
		`INSERT INTO operations (operation, path, version, username, status, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Operation, entry.Path, entry.Version, entry.User, entry.Status, entry.Detail, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading operation id: %w", err)
	}
	entry.ID = id
	return nil
}

// List returns up to limit entries, newest first. A non-positive limit returns all.
func (j *SQLiteJournal) List(limit int) ([]*chasm.JournalEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.Query(
		`SELECT id, operation, path, version, username, status, detail, created_at
		 FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var entries []*chasm.JournalEntry
	for rows.Next() {
		e := &chasm.JournalEntry{}
		if err := rows.Scan(&e.ID, &e.Operation, &e.Path, &e.Version, &e.User, &e.Status, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return entries, nil
}

// Close closes the database connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// Compile-time check that SQLiteJournal implements chasm.Journal.
var _ chasm.Journal = (*SQLiteJournal)(nil)
