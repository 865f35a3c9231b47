package state

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/codescope/codescope/internal/errors"
)

// FileRecord statuses.
const (
	FileStatusPending = "pending"
	FileStatusIndexed = "indexed"
	FileStatusFailed  = "failed"
	FileStatusSkipped = "skipped"
)

// Change types recorded in file_change_history.
const (
	ChangeCreated  = "created"
	ChangeModified = "modified"
	ChangeDeleted  = "deleted"
	ChangeRenamed  = "renamed"
)

// FileRecord is the persistent indexing state of one file in one project.
type FileRecord struct {
	ProjectID       string
	RelativePath    string
	ContentHash     string
	Size            int64
	LastModified    time.Time
	LastIndexed     time.Time
	IndexingVersion int
	ChunkCount      int
	Language        string
	Status          string
	ErrorMessage    string
}

const fileRecordColumns = `project_id, relative_path, content_hash, file_size,
	last_modified, last_indexed, indexing_version, chunk_count, language, status,
	COALESCE(error_message, '')`

func scanFileRecord(row interface{ Scan(...any) error }) (*FileRecord, error) {
	var r FileRecord
	var lastModified, lastIndexed sql.NullTime
	err := row.Scan(&r.ProjectID, &r.RelativePath, &r.ContentHash, &r.Size,
		&lastModified, &lastIndexed, &r.IndexingVersion, &r.ChunkCount,
		&r.Language, &r.Status, &r.ErrorMessage)
	if err != nil {
		return nil, err
	}
	r.LastModified = lastModified.Time
	r.LastIndexed = lastIndexed.Time
	return &r, nil
}

// GetFile returns the record for (projectID, relPath), or a not-found error.
func (s *Store) GetFile(ctx context.Context, projectID, relPath string) (*FileRecord, error) {
	const op = "state.GetFile"
	row := s.db.QueryRowContext(ctx,
		`SELECT `+fileRecordColumns+` FROM file_index_states WHERE project_id = ? AND relative_path = ?`,
		projectID, relPath)
	r, err := scanFileRecord(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(op, "no record for "+relPath)
	}
	if err != nil {
		return nil, errors.Internal(op, err)
	}
	return r, nil
}

// UpsertFile writes the record, replacing any previous one for the same
// (projectID, relativePath).
func (s *Store) UpsertFile(ctx context.Context, r *FileRecord) error {
	const op = "state.UpsertFile"
	lock := s.projectLock(r.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_index_states
			(project_id, relative_path, content_hash, file_size, last_modified,
			 last_indexed, indexing_version, chunk_count, language, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, relative_path) DO UPDATE SET
			content_hash = excluded.content_hash,
			file_size = excluded.file_size,
			last_modified = excluded.last_modified,
			last_indexed = excluded.last_indexed,
			indexing_version = excluded.indexing_version,
			chunk_count = excluded.chunk_count,
			language = excluded.language,
			status = excluded.status,
			error_message = excluded.error_message`,
		r.ProjectID, r.RelativePath, r.ContentHash, r.Size, r.LastModified,
		r.LastIndexed, r.IndexingVersion, r.ChunkCount, r.Language, r.Status,
		nullIfEmpty(r.ErrorMessage))
	if err != nil {
		return errors.Internal(op, err)
	}
	return nil
}

// RenameFile moves a record to a new relative path, leaving every other
// field as it was.
func (s *Store) RenameFile(ctx context.Context, projectID, oldPath, newPath string) error {
	const op = "state.RenameFile"
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE file_index_states SET relative_path = ? WHERE project_id = ? AND relative_path = ?`,
		newPath, projectID, oldPath)
	if err != nil {
		return errors.Internal(op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound(op, "no record for "+oldPath)
	}
	return nil
}

// DeleteFile removes the record. Deleting a missing record is not an error.
func (s *Store) DeleteFile(ctx context.Context, projectID, relPath string) error {
	const op = "state.DeleteFile"
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM file_index_states WHERE project_id = ? AND relative_path = ?`,
		projectID, relPath)
	if err != nil {
		return errors.Internal(op, err)
	}
	return nil
}

// ListFiles returns all records for a project keyed by relative path.
func (s *Store) ListFiles(ctx context.Context, projectID string) (map[string]*FileRecord, error) {
	const op = "state.ListFiles"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileRecordColumns+` FROM file_index_states WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, errors.Internal(op, err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]*FileRecord)
	for rows.Next() {
		r, err := scanFileRecord(rows)
		if err != nil {
			return nil, errors.Internal(op, err)
		}
		out[r.RelativePath] = r
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal(op, err)
	}
	return out, nil
}

// BatchGetFiles returns the records for the given paths; missing paths are
// simply absent from the result.
func (s *Store) BatchGetFiles(ctx context.Context, projectID string, relPaths []string) (map[string]*FileRecord, error) {
	const op = "state.BatchGetFiles"
	if len(relPaths) == 0 {
		return map[string]*FileRecord{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(relPaths)), ",")
	args := make([]any, 0, len(relPaths)+1)
	args = append(args, projectID)
	for _, p := range relPaths {
		args = append(args, p)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileRecordColumns+` FROM file_index_states
		 WHERE project_id = ? AND relative_path IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, errors.Internal(op, err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]*FileRecord, len(relPaths))
	for rows.Next() {
		r, err := scanFileRecord(rows)
		if err != nil {
			return nil, errors.Internal(op, err)
		}
		out[r.RelativePath] = r
	}
	return out, rows.Err()
}

// DeleteProjectFiles removes every record for a project.
func (s *Store) DeleteProjectFiles(ctx context.Context, projectID string) error {
	const op = "state.DeleteProjectFiles"
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM file_index_states WHERE project_id = ?`, projectID)
	if err != nil {
		return errors.Internal(op, err)
	}
	return nil
}

// RecordChange appends one entry to the file change history.
func (s *Store) RecordChange(ctx context.Context, projectID, relPath, changeType, previousHash, currentHash string) error {
	const op = "state.RecordChange"
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_change_history
			(project_id, relative_path, change_type, previous_hash, current_hash, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		projectID, relPath, changeType, nullIfEmpty(previousHash), nullIfEmpty(currentHash), time.Now().UTC())
	if err != nil {
		return errors.Internal(op, err)
	}
	return nil
}

// ChangeHistory returns the most recent history entries for a file, newest
// first.
func (s *Store) ChangeHistory(ctx context.Context, projectID, relPath string, limit int) ([]ChangeEntry, error) {
	const op = "state.ChangeHistory"
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT change_type, COALESCE(previous_hash, ''), COALESCE(current_hash, ''), timestamp
		FROM file_change_history
		WHERE project_id = ? AND relative_path = ?
		ORDER BY id DESC LIMIT ?`,
		projectID, relPath, limit)
	if err != nil {
		return nil, errors.Internal(op, err)
	}
	defer func() { _ = rows.Close() }()

	var out []ChangeEntry
	for rows.Next() {
		var e ChangeEntry
		if err := rows.Scan(&e.ChangeType, &e.PreviousHash, &e.CurrentHash, &e.Timestamp); err != nil {
			return nil, errors.Internal(op, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ChangeEntry is one row of the file change history.
type ChangeEntry struct {
	ChangeType   string
	PreviousHash string
	CurrentHash  string
	Timestamp    time.Time
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
