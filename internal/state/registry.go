package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/codescope/codescope/internal/errors"
	"github.com/codescope/codescope/internal/ident"
)

// Project statuses.
const (
	ProjectStatusPending   = "pending"
	ProjectStatusIndexing  = "indexing"
	ProjectStatusCompleted = "completed"
	ProjectStatusError     = "error"
)

// Project is one registered project root.
type Project struct {
	ID             string
	Path           string
	Name           string
	CollectionName string
	SpaceName      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastIndexedAt  time.Time
	Status         string
}

// RegisterProject derives the project id from the absolute path and inserts
// the project if it is not already registered. Registration is idempotent:
// (path, projectId) is a bijection.
func (s *Store) RegisterProject(ctx context.Context, absPath string) (*Project, error) {
	const op = "state.RegisterProject"
	absPath = filepath.Clean(absPath)
	id := ident.ProjectID(absPath)

	if p, err := s.GetProject(ctx, id); err == nil {
		return p, nil
	} else if errors.KindOf(err) != errors.KindNotFound {
		return nil, err
	}

	now := time.Now().UTC()
	p := &Project{
		ID:             id,
		Path:           absPath,
		Name:           filepath.Base(absPath),
		CollectionName: ident.CollectionName(id),
		SpaceName:      ident.SpaceName(id),
		CreatedAt:      now,
		UpdatedAt:      now,
		Status:         ProjectStatusPending,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, path, name, collection_name, space_name, created_at, updated_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		p.ID, p.Path, p.Name, p.CollectionName, p.SpaceName, p.CreatedAt, p.UpdatedAt, p.Status)
	if err != nil {
		return nil, errors.Internal(op, err)
	}
	return p, nil
}

const projectColumns = `id, path, name, collection_name, space_name,
	created_at, updated_at, last_indexed_at, status`

func scanProject(row interface{ Scan(...any) error }) (*Project, error) {
	var p Project
	var lastIndexed sql.NullTime
	err := row.Scan(&p.ID, &p.Path, &p.Name, &p.CollectionName, &p.SpaceName,
		&p.CreatedAt, &p.UpdatedAt, &lastIndexed, &p.Status)
	if err != nil {
		return nil, err
	}
	p.LastIndexedAt = lastIndexed.Time
	return &p, nil
}

// GetProject returns a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	const op = "state.GetProject"
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(op, "project not registered: "+id)
	}
	if err != nil {
		return nil, errors.Internal(op, err)
	}
	return p, nil
}

// ResolveProject returns the project registered for a path, if any.
func (s *Store) ResolveProject(ctx context.Context, absPath string) (*Project, error) {
	return s.GetProject(ctx, ident.ProjectID(filepath.Clean(absPath)))
}

// ListProjects returns all registered projects ordered by path.
func (s *Store) ListProjects(ctx context.Context) ([]*Project, error) {
	const op = "state.ListProjects"
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY path`)
	if err != nil {
		return nil, errors.Internal(op, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, errors.Internal(op, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TouchProject updates the project's updated-at and last-indexed times.
func (s *Store) TouchProject(ctx context.Context, id string, at time.Time) error {
	const op = "state.TouchProject"
	_, err := s.db.ExecContext(ctx,
		`UPDATE projects SET updated_at = ?, last_indexed_at = ? WHERE id = ?`, at, at, id)
	if err != nil {
		return errors.Internal(op, err)
	}
	return nil
}

// SetProjectStatus updates the status field.
func (s *Store) SetProjectStatus(ctx context.Context, id, status string) error {
	const op = "state.SetProjectStatus"
	_, err := s.db.ExecContext(ctx,
		`UPDATE projects SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().UTC(), id)
	if err != nil {
		return errors.Internal(op, err)
	}
	return nil
}

// RemoveProject deletes the project and, via cascade, its file records.
func (s *Store) RemoveProject(ctx context.Context, id string) error {
	const op = "state.RemoveProject"
	lock := s.projectLock(id)
	lock.Lock()
	defer lock.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return errors.Internal(op, err)
	}
	return nil
}

// LatestUpdatedProject returns the most recently indexed project, or a
// not-found error when nothing has been indexed.
func (s *Store) LatestUpdatedProject(ctx context.Context) (*Project, error) {
	const op = "state.LatestUpdatedProject"
	row := s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects
		 WHERE last_indexed_at IS NOT NULL ORDER BY last_indexed_at DESC LIMIT 1`)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(op, "no indexed projects")
	}
	if err != nil {
		return nil, errors.Internal(op, err)
	}
	return p, nil
}

// mappingEntry is the on-disk shape of one project in project-mapping.json.
type mappingEntry struct {
	Path           string    `json:"path"`
	CollectionName string    `json:"collectionName"`
	SpaceName      string    `json:"spaceName"`
	CreatedAt      time.Time `json:"createdAt"`
	LastIndexedAt  time.Time `json:"lastIndexedAt,omitempty"`
}

// ExportMapping writes project-mapping.json next to the database so other
// tools can resolve project ids without opening SQLite. The write is
// rename-on-success.
func (s *Store) ExportMapping(ctx context.Context, path string) error {
	const op = "state.ExportMapping"
	projects, err := s.ListProjects(ctx)
	if err != nil {
		return err
	}
	mapping := make(map[string]mappingEntry, len(projects))
	for _, p := range projects {
		mapping[p.ID] = mappingEntry{
			Path:           p.Path,
			CollectionName: p.CollectionName,
			SpaceName:      p.SpaceName,
			CreatedAt:      p.CreatedAt,
			LastIndexedAt:  p.LastIndexedAt,
		}
	}
	data, err := json.MarshalIndent(mapping, "", "  ")
	if err != nil {
		return errors.Internal(op, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Permission(op, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Permission(op, err)
	}
	return nil
}
