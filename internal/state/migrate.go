package state

import (
	"database/sql"

	"github.com/codescope/codescope/internal/errors"
)

// migration is one forward schema step. Statements run inside a single
// transaction together with the version bookkeeping; no destructive
// migration runs automatically.
type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS projects (
				id TEXT PRIMARY KEY,
				path TEXT UNIQUE NOT NULL,
				name TEXT NOT NULL,
				collection_name TEXT NOT NULL,
				space_name TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL,
				last_indexed_at TIMESTAMP,
				status TEXT NOT NULL DEFAULT 'pending',
				settings TEXT NOT NULL DEFAULT '{}'
			)`,
			`CREATE TABLE IF NOT EXISTS file_index_states (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				relative_path TEXT NOT NULL,
				content_hash TEXT NOT NULL,
				file_size INTEGER NOT NULL DEFAULT 0,
				last_modified TIMESTAMP,
				last_indexed TIMESTAMP,
				indexing_version INTEGER NOT NULL DEFAULT 0,
				chunk_count INTEGER NOT NULL DEFAULT 0,
				language TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'pending',
				error_message TEXT,
				UNIQUE(project_id, relative_path)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_file_states_project ON file_index_states(project_id)`,
			`CREATE TABLE IF NOT EXISTS file_change_history (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				project_id TEXT NOT NULL,
				relative_path TEXT NOT NULL,
				change_type TEXT NOT NULL,
				previous_hash TEXT,
				current_hash TEXT,
				timestamp TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_change_history_project ON file_change_history(project_id, relative_path)`,
		},
	},
}

// migrate applies pending forward migrations, each in its own transaction.
func (s *Store) migrate() error {
	const op = "state.migrate"
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return errors.Internal(op, err)
	}

	current := 0
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return errors.Internal(op, err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.applyMigration(m); err != nil {
			return errors.Internal(op, err)
		}
	}
	return nil
}

func (s *Store) applyMigration(m migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, stmt := range m.statements {
		if _, err := tx.Exec(stmt); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.version); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// SchemaVersion returns the highest applied migration version.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	if err != nil {
		return 0, errors.Internal("state.SchemaVersion", err)
	}
	return v, nil
}
