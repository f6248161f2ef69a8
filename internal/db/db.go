// Package db implements the sample store and aggregation queries on SQLite.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/meshmap-dev/meshmap/internal/timeutil"
)

// DB wraps the SQLite handle together with the clock used for server-assigned
// timestamps and time-window cutoffs.
type DB struct {
	*sql.DB
	path  string
	clock timeutil.Clock
}

// OpenDB opens the database at path without touching the schema. Use this for
// migration tooling; NewDB is the normal entry point.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %q: %w", path, err)
	}

	// SQLite does not enforce foreign keys unless asked, and concurrent
	// request handlers need a busy timeout rather than immediate SQLITE_BUSY.
	if _, err := sqlDB.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	return &DB{DB: sqlDB, path: path, clock: timeutil.RealClock{}}, nil
}

// NewDB opens the database and brings the schema up to the latest migration.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Path returns the filesystem path the database was opened with.
func (db *DB) Path() string {
	return db.path
}

// SetClock replaces the clock used for timestamps. Tests use this to pin time.
func (db *DB) SetClock(c timeutil.Clock) {
	db.clock = c
}
