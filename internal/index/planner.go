package index

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/codescope/codescope/internal/ident"
	"github.com/codescope/codescope/internal/scanner"
	"github.com/codescope/codescope/internal/state"
)

// ChangeKind classifies a planned or observed change.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeRenamed  ChangeKind = "renamed"
	ChangeRescan   ChangeKind = "rescan"
)

// Change is one unit of incremental work. RelPath is the current
// path; OldRelPath is set only for renames.
type Change struct {
	Kind         ChangeKind
	RelPath      string
	OldRelPath   string
	PreviousHash string
	CurrentHash  string
}

// PlanIncremental diffs the current tree against the file-state store
// and returns the change set that brings the index up to date. Files
// whose mtime and size are unchanged are trusted without re-hashing;
// records written by an older indexing version are re-indexed
// regardless.
func (c *Coordinator) PlanIncremental(ctx context.Context, project *state.Project) ([]Change, error) {
	indexed, err := c.deps.State.ListFiles(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	results, err := c.deps.Scanner.Scan(ctx, &scanner.Options{
		RootDir:      project.Path,
		IncludeGlobs: c.deps.Paths.Include,
		ExcludeGlobs: c.deps.Paths.Exclude,
		Extensions:   c.deps.Files.SupportedExtensions,
		MaxFileSize:  c.deps.Files.MaxFileSize,
	})
	if err != nil {
		return nil, err
	}
	current := make(map[string]*scanner.FileInfo)
	for res := range results {
		if res.Err != nil {
			c.deps.Logger.Warn("plan scan error", "error", res.Err)
			continue
		}
		current[res.File.RelPath] = res.File
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var added []Change
	var modified []Change
	deleted := make(map[string]*state.FileRecord)

	for rel, rec := range indexed {
		if _, ok := current[rel]; !ok {
			deleted[rel] = rec
		}
	}

	for rel, info := range current {
		rec, ok := indexed[rel]
		if !ok {
			hash, hashErr := c.hashFile(project.Path, rel)
			if hashErr != nil {
				continue
			}
			added = append(added, Change{Kind: ChangeCreated, RelPath: rel, CurrentHash: hash})
			continue
		}

		unchangedMeta := info.ModTime.Equal(rec.LastModified) && info.Size == rec.Size
		if unchangedMeta && rec.IndexingVersion == state.IndexingVersion &&
			rec.Status == state.FileStatusIndexed {
			continue
		}
		hash, hashErr := c.hashFile(project.Path, rel)
		if hashErr != nil {
			continue
		}
		if hash == rec.ContentHash && rec.IndexingVersion == state.IndexingVersion &&
			rec.Status == state.FileStatusIndexed {
			continue
		}
		modified = append(modified, Change{
			Kind:         ChangeModified,
			RelPath:      rel,
			PreviousHash: rec.ContentHash,
			CurrentHash:  hash,
		})
	}

	// Rename recognition: an added file whose content hash matches a
	// deleted record is the same file at a new path.
	deletedByHash := make(map[string]string, len(deleted))
	for rel, rec := range deleted {
		if rec.ContentHash != "" {
			deletedByHash[rec.ContentHash] = rel
		}
	}

	changes := make([]Change, 0, len(added)+len(modified)+len(deleted))
	for _, ch := range added {
		if oldRel, ok := deletedByHash[ch.CurrentHash]; ok {
			delete(deletedByHash, ch.CurrentHash)
			delete(deleted, oldRel)
			changes = append(changes, Change{
				Kind:         ChangeRenamed,
				RelPath:      ch.RelPath,
				OldRelPath:   oldRel,
				PreviousHash: ch.CurrentHash,
				CurrentHash:  ch.CurrentHash,
			})
			continue
		}
		changes = append(changes, ch)
	}
	changes = append(changes, modified...)
	for rel, rec := range deleted {
		changes = append(changes, Change{Kind: ChangeDeleted, RelPath: rel, PreviousHash: rec.ContentHash})
	}

	sort.Slice(changes, func(i, k int) bool { return changes[i].RelPath < changes[k].RelPath })
	return changes, nil
}

func (c *Coordinator) hashFile(root, rel string) (string, error) {
	content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return "", err
	}
	return ident.FileHash(content), nil
}
