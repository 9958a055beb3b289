package store

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// ErrNoAuth is returned when no authentication is stored
var ErrNoAuth = eris.New("no authentication stored")

// ErrRunNotFound is returned when a pipeline run doesn't exist
var ErrRunNotFound = eris.New("run not found")

// pragmas run on every pooled connection, not just the first.
const pragmas = "?_pragma=foreign_keys(1)"

// DB wraps the SQLite handle holding raw activities, races and run results.
type DB struct {
	*sql.DB
}

// Open opens the SQLite database at path, creating it if necessary.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, eris.Wrap(err, "creating data directory")
		}
	}

	sqlDB, err := sql.Open("sqlite", path+pragmas)
	if err != nil {
		return nil, eris.Wrap(err, "opening database")
	}
	return setup(sqlDB)
}

// OpenMemory opens a private in-memory database.
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:"+pragmas)
	if err != nil {
		return nil, eris.Wrap(err, "opening database")
	}
	// every pooled connection would otherwise get its own empty database
	sqlDB.SetMaxOpenConns(1)
	return setup(sqlDB)
}

func setup(sqlDB *sql.DB) (*DB, error) {
	if err := migrate(sqlDB); err != nil {
		sqlDB.Close()
		return nil, eris.Wrap(err, "running migrations")
	}

	return &DB{sqlDB}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
