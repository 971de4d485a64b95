package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var migrationFiles embed.FS

var (
	// ErrBehind means the journal can be brought up to date with MigrateUp.
	ErrBehind = errors.New("journal schema is behind")
	// ErrAhead means the journal was written by a newer chasm.
	ErrAhead = errors.New("journal schema is newer than this binary")
	// ErrDirty means an earlier migration stopped half way.
	ErrDirty = errors.New("journal schema is dirty")
)

// Status compares the journal's schema version with the embedded migrations.
// A nil error means the journal is current.
func Status(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	// Closing m would close db, which belongs to the caller.

	current, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return fmt.Errorf("%w: no schema version recorded", ErrBehind)
	case err != nil:
		return fmt.Errorf("reading schema version: %w", err)
	case dirty:
		return fmt.Errorf("%w at version %d", ErrDirty, current)
	}

	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return fmt.Errorf("opening embedded migrations: %w", err)
	}
	defer src.Close()

	latest, err := lastVersion(src)
	if err != nil {
		return fmt.Errorf("scanning embedded migrations: %w", err)
	}
	if current < latest {
		return fmt.Errorf("%w: at %d, latest is %d", ErrBehind, current, latest)
	}
	if current > latest {
		return fmt.Errorf("%w: at %d, binary knows %d", ErrAhead, current, latest)
	}
	return nil
}

// MigrateUp applies every pending migration. It is a no-op on a current journal.
func MigrateUp(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("opening embedded migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("wrapping journal database: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("preparing migrations: %w", err)
	}
	return m, nil
}

func lastVersion(src source.Driver) (uint, error) {
	v, err := src.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := src.Next(v)
		if err != nil {
			return v, nil
		}
		v = next
	}
}
