package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codescope/codescope/internal/errors"
	"github.com/codescope/codescope/internal/ident"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), DefaultDBName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRecord(projectID, relPath, hash string) *FileRecord {
	return &FileRecord{
		ProjectID:       projectID,
		RelativePath:    relPath,
		ContentHash:     hash,
		Size:            128,
		LastModified:    time.Now().UTC().Truncate(time.Second),
		LastIndexed:     time.Now().UTC().Truncate(time.Second),
		IndexingVersion: IndexingVersion,
		ChunkCount:      3,
		Language:        "go",
		Status:          FileStatusIndexed,
	}
}

func TestOpenAppliesMigrations(t *testing.T) {
	s := testStore(t)
	v, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultDBName)

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()
	v, err := s2.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestRegisterProject(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	p, err := s.RegisterProject(ctx, "/work/demo")
	require.NoError(t, err)
	assert.Equal(t, ident.ProjectID("/work/demo"), p.ID)
	assert.Equal(t, "demo", p.Name)
	assert.Equal(t, "project-"+p.ID, p.CollectionName)
	assert.Equal(t, "project_"+p.ID, p.SpaceName)
	assert.Equal(t, ProjectStatusPending, p.Status)

	// Idempotent: same path, same identity.
	again, err := s.RegisterProject(ctx, "/work/demo")
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)

	list, err := s.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestResolveProject(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.ResolveProject(ctx, "/nowhere")
	require.Error(t, err)
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))

	p, err := s.RegisterProject(ctx, "/work/demo")
	require.NoError(t, err)
	got, err := s.ResolveProject(ctx, "/work/demo")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestProjectStatusAndTouch(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	p, err := s.RegisterProject(ctx, "/work/demo")
	require.NoError(t, err)

	require.NoError(t, s.SetProjectStatus(ctx, p.ID, ProjectStatusCompleted))
	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.TouchProject(ctx, p.ID, at))

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, ProjectStatusCompleted, got.Status)
	assert.Equal(t, at, got.LastIndexedAt.UTC())

	latest, err := s.LatestUpdatedProject(ctx)
	require.NoError(t, err)
	assert.Equal(t, p.ID, latest.ID)
}

func TestFileRecordRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	p, err := s.RegisterProject(ctx, "/work/demo")
	require.NoError(t, err)

	rec := testRecord(p.ID, "src/a.go", "hash-1")
	require.NoError(t, s.UpsertFile(ctx, rec))

	got, err := s.GetFile(ctx, p.ID, "src/a.go")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", got.ContentHash)
	assert.Equal(t, 3, got.ChunkCount)
	assert.Equal(t, FileStatusIndexed, got.Status)
	assert.Equal(t, IndexingVersion, got.IndexingVersion)

	// Upsert replaces in place; one live record per path.
	rec.ContentHash = "hash-2"
	rec.ChunkCount = 5
	require.NoError(t, s.UpsertFile(ctx, rec))
	got, err = s.GetFile(ctx, p.ID, "src/a.go")
	require.NoError(t, err)
	assert.Equal(t, "hash-2", got.ContentHash)
	assert.Equal(t, 5, got.ChunkCount)

	all, err := s.ListFiles(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetFileNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetFile(context.Background(), "nope", "a.go")
	require.Error(t, err)
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestRenameFile(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	p, err := s.RegisterProject(ctx, "/work/demo")
	require.NoError(t, err)

	require.NoError(t, s.UpsertFile(ctx, testRecord(p.ID, "a.go", "same-hash")))
	require.NoError(t, s.RenameFile(ctx, p.ID, "a.go", "src/a.go"))

	_, err = s.GetFile(ctx, p.ID, "a.go")
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))

	got, err := s.GetFile(ctx, p.ID, "src/a.go")
	require.NoError(t, err)
	assert.Equal(t, "same-hash", got.ContentHash, "rename keeps every other field")

	err = s.RenameFile(ctx, p.ID, "missing.go", "x.go")
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestBatchGetFiles(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	p, err := s.RegisterProject(ctx, "/work/demo")
	require.NoError(t, err)

	require.NoError(t, s.UpsertFile(ctx, testRecord(p.ID, "a.go", "h1")))
	require.NoError(t, s.UpsertFile(ctx, testRecord(p.ID, "b.go", "h2")))

	got, err := s.BatchGetFiles(ctx, p.ID, []string{"a.go", "b.go", "missing.go"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "h1", got["a.go"].ContentHash)
	_, ok := got["missing.go"]
	assert.False(t, ok)
}

func TestDeleteProjectCascades(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	p, err := s.RegisterProject(ctx, "/work/demo")
	require.NoError(t, err)
	require.NoError(t, s.UpsertFile(ctx, testRecord(p.ID, "a.go", "h1")))

	require.NoError(t, s.RemoveProject(ctx, p.ID))
	files, err := s.ListFiles(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestChangeHistory(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	p, err := s.RegisterProject(ctx, "/work/demo")
	require.NoError(t, err)

	require.NoError(t, s.RecordChange(ctx, p.ID, "a.go", ChangeCreated, "", "h1"))
	require.NoError(t, s.RecordChange(ctx, p.ID, "a.go", ChangeModified, "h1", "h2"))

	history, err := s.ChangeHistory(ctx, p.ID, "a.go", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ChangeModified, history[0].ChangeType, "newest first")
	assert.Equal(t, "h1", history[0].PreviousHash)
	assert.Equal(t, ChangeCreated, history[1].ChangeType)
	assert.Empty(t, history[1].PreviousHash)
}

func TestExportMapping(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	p, err := s.RegisterProject(ctx, "/work/demo")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "project-mapping.json")
	require.NoError(t, s.ExportMapping(ctx, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var mapping map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &mapping))
	entry, ok := mapping[p.ID]
	require.True(t, ok)
	assert.Equal(t, "/work/demo", entry["path"])
	assert.Equal(t, p.CollectionName, entry["collectionName"])
}
