// Package state is the durable local metadata store: the project registry,
// per-file index records, change history, and schema migrations. It is
// backed by an embedded SQLite database.
package state

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/codescope/codescope/internal/errors"
)

// IndexingVersion is bumped when the chunking or extraction pipeline
// changes shape; files indexed under an older version are re-indexed even
// when their content hash is unchanged.
const IndexingVersion = 1

// DefaultDBName is the database file name under the data directory.
const DefaultDBName = "codescope.db"

// Store owns the metadata database. Writes for a project are serialized
// through a per-project mutex; reads are concurrent.
type Store struct {
	db *sql.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	const op = "state.Open"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Permission(op, err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, errors.Internal(op, err)
	}
	// modernc sqlite serializes at the driver level; a single connection
	// avoids SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, locks: make(map[string]*sync.Mutex)}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// projectLock returns the write lock for a project, creating it on first use.
func (s *Store) projectLock(projectID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[projectID] = l
	}
	return l
}
