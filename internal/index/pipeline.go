package index

import (
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codescope/codescope/internal/chunk"
	"github.com/codescope/codescope/internal/errors"
	"github.com/codescope/codescope/internal/extract"
	"github.com/codescope/codescope/internal/graphstore"
	"github.com/codescope/codescope/internal/ident"
	"github.com/codescope/codescope/internal/memguard"
	"github.com/codescope/codescope/internal/scanner"
	"github.com/codescope/codescope/internal/state"
	"github.com/codescope/codescope/internal/vectorstore"
)

// pauseProbeInterval is how often a paused job re-checks memory
// pressure.
const pauseProbeInterval = 500 * time.Millisecond

type outcomeStatus int

const (
	outcomeIndexed outcomeStatus = iota
	outcomeUnchanged
	outcomeFailed
)

type fileOutcome struct {
	status   outcomeStatus
	chunks   int
	entities int
}

// runFull walks the whole project and indexes every discovered file.
func (j *job) runFull() (*Result, error) {
	start := time.Now()
	j.setState(StatePlanning)

	if err := j.preflight(); err != nil {
		return j.finish(start, err)
	}

	files, err := j.scanProject()
	if err != nil {
		return j.finish(start, err)
	}

	j.progressMu.Lock()
	j.total = len(files)
	j.progressMu.Unlock()
	j.setState(StateRunning)

	err = dispatch(j, files, func(f *scanner.FileInfo) {
		j.indexOne(f.RelPath, false)
	})
	return j.finish(start, err)
}

// runChanges applies an incremental change set.
func (j *job) runChanges(changes []Change) (*Result, error) {
	start := time.Now()
	j.setState(StatePlanning)

	// A rescan event means ignore rules or configuration changed; the
	// single-file deltas around it are stale, so re-plan the project.
	for _, ch := range changes {
		if ch.Kind == ChangeRescan {
			j.deps().Scanner.InvalidateIgnoreRules(j.project.Path)
			replanned, err := j.coord.PlanIncremental(j.ctx, j.project)
			if err != nil {
				return j.finish(start, err)
			}
			changes = replanned
			break
		}
	}

	if err := j.preflight(); err != nil {
		return j.finish(start, err)
	}

	changes = dedupeChanges(changes)

	j.progressMu.Lock()
	j.total = len(changes)
	j.progressMu.Unlock()
	j.setState(StateRunning)

	err := dispatch(j, changes, func(ch Change) {
		j.applyChange(ch)
	})
	return j.finish(start, err)
}

// dedupeChanges collapses repeated events for the same path down to
// the most recent one. Editors routinely emit bursts of writes inside
// a single debounce window, and indexing the same file from two
// workers at once races on both stores.
func dedupeChanges(changes []Change) []Change {
	last := make(map[string]int, len(changes))
	for i, ch := range changes {
		last[ch.RelPath] = i
	}
	if len(last) == len(changes) {
		return changes
	}
	deduped := make([]Change, 0, len(last))
	for i, ch := range changes {
		if last[ch.RelPath] == i {
			deduped = append(deduped, ch)
		}
	}
	return deduped
}

// preflight verifies both stores are usable before any work is
// dispatched. A dimension conflict is fatal: collections are
// immutable in dimension.
func (j *job) preflight() error {
	d := j.deps()

	dim := d.Embedder.Dimensions()
	if dim == 0 {
		// Some providers only learn their dimension from a response.
		vecs, err := d.Embedder.Embed(j.ctx, []string{"dimension probe"})
		if err != nil {
			return err
		}
		if len(vecs) == 0 {
			return errors.Validation("index.preflight", "embedder returned no vectors")
		}
		dim = len(vecs[0])
	}

	if err := d.Vectors.EnsureCollection(j.ctx, j.project.CollectionName, dim); err != nil {
		return err
	}
	return d.Graph.EnsureSpace(j.ctx, j.project.SpaceName)
}

// scanProject collects all indexable files up front so progress
// totals are known.
func (j *job) scanProject() ([]*scanner.FileInfo, error) {
	d := j.deps()
	results, err := d.Scanner.Scan(j.ctx, &scanner.Options{
		RootDir:      j.project.Path,
		IncludeGlobs: d.Paths.Include,
		ExcludeGlobs: d.Paths.Exclude,
		Extensions:   d.Files.SupportedExtensions,
		MaxFileSize:  d.Files.MaxFileSize,
	})
	if err != nil {
		return nil, err
	}

	var files []*scanner.FileInfo
	for res := range results {
		if res.Err != nil {
			j.logger.Warn("scan error", "error", res.Err)
			continue
		}
		files = append(files, res.File)
	}
	return files, j.ctx.Err()
}

// dispatch fans work out to the worker pool through a bounded queue.
// Memory pressure is polled between dispatches: critical pauses
// dispatch entirely, and the embedding batch size reacts to warning.
func dispatchQueueDepth(maxConcurrency int) int { return 2 * maxConcurrency }

func dispatch[T any](j *job, items []T, work func(T)) error {
	workers := j.deps().Indexing.MaxConcurrency
	queue := make(chan T, dispatchQueueDepth(workers))

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for item := range queue {
				if j.ctx.Err() != nil {
					continue // drain without starting new work
				}
				work(item)
			}
			return nil
		})
	}

	var dispatchErr error
	for _, item := range items {
		if err := j.pressureGate(); err != nil {
			dispatchErr = err
			break
		}
		select {
		case queue <- item:
		case <-j.ctx.Done():
			dispatchErr = j.ctx.Err()
		}
		if dispatchErr != nil {
			break
		}
	}
	close(queue)
	_ = g.Wait()

	if dispatchErr == nil {
		dispatchErr = j.ctx.Err()
	}
	return dispatchErr
}

// pressureGate blocks while memory pressure is at or above critical.
func (j *job) pressureGate() error {
	guard := j.deps().Guard
	if guard == nil {
		return nil
	}
	if guard.Check() < memguard.LevelCritical {
		return nil
	}

	j.logger.Warn("pausing dispatch under memory pressure")
	j.setState(StatePaused)
	defer j.setState(StateRunning)

	ticker := time.NewTicker(pauseProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-j.ctx.Done():
			return j.ctx.Err()
		case <-ticker.C:
			if guard.Check() < memguard.LevelCritical {
				j.logger.Info("memory pressure recovered, resuming dispatch")
				return nil
			}
		}
	}
}

// embedBatchSize derives the per-call batch size, halved under
// warning-or-higher pressure.
func (j *job) embedBatchSize() int {
	d := j.deps()
	size := d.Indexing.BatchSize
	if max := d.Embedder.BatchSize(); max > 0 && size > max {
		size = max
	}
	if d.Guard != nil && d.Guard.Level() >= memguard.LevelWarning {
		size /= 2
	}
	if size < 1 {
		size = 1
	}
	return size
}

// applyChange routes one change event to its handler and records it
// in the change history.
func (j *job) applyChange(ch Change) {
	d := j.deps()
	switch ch.Kind {
	case ChangeCreated, ChangeModified:
		j.indexOne(ch.RelPath, false)
		_ = d.State.RecordChange(j.ctx, j.project.ID, ch.RelPath, string(ch.Kind), ch.PreviousHash, ch.CurrentHash)
	case ChangeDeleted:
		if err := j.removeFile(ch.RelPath); err != nil {
			j.logger.Error("delete failed", "path", ch.RelPath, "error", err)
			j.addOutcome(fileOutcome{status: outcomeFailed})
		} else {
			j.addOutcome(fileOutcome{status: outcomeIndexed})
		}
		_ = d.State.RecordChange(j.ctx, j.project.ID, ch.RelPath, string(ch.Kind), ch.PreviousHash, "")
	case ChangeRenamed:
		// Chunk and entity ids incorporate the path, so a rename is a
		// delete at the old path plus a fresh index at the new one.
		// The renamed record carries the unchanged content hash, so the
		// re-index must be forced past the unchanged shortcut.
		if err := j.removeArtifacts(ch.OldRelPath); err != nil {
			j.logger.Error("rename cleanup failed", "path", ch.OldRelPath, "error", err)
		}
		if err := d.State.RenameFile(j.ctx, j.project.ID, ch.OldRelPath, ch.RelPath); err != nil {
			if errors.KindOf(err) != errors.KindNotFound {
				j.logger.Error("rename record failed", "path", ch.OldRelPath, "error", err)
			}
		}
		j.indexOne(ch.RelPath, true)
		_ = d.State.RecordChange(j.ctx, j.project.ID, ch.RelPath, string(ch.Kind), ch.PreviousHash, ch.CurrentHash)
	}
	j.emitProgress(ch.RelPath)
}

// indexOne runs the whole per-file pipeline and records the outcome.
// force bypasses the unchanged shortcut; renames need it because the
// renamed record already carries the current hash.
func (j *job) indexOne(relPath string, force bool) {
	j.emitProgress(relPath)
	outcome, err := j.processFile(relPath, force)
	if err != nil {
		j.logger.Error("file indexing failed", "path", relPath, "error", err)
		j.markFailed(relPath, err)
		j.addOutcome(fileOutcome{status: outcomeFailed})
		if errors.KindOf(err) == errors.KindValidation {
			// A validation error, like a short embedding batch, means
			// the provider is misbehaving for every file, not just this
			// one. Fail the job instead of grinding through the rest.
			j.abort(err)
		}
		return
	}
	j.addOutcome(outcome)
}

// processFile reads, chunks, extracts, embeds, and commits a single
// file.
func (j *job) processFile(relPath string, force bool) (fileOutcome, error) {
	d := j.deps()
	abs := filepath.Join(j.project.Path, filepath.FromSlash(relPath))

	content, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			// Deleted between scan and dispatch; the follow-up delete
			// event repairs state.
			return fileOutcome{status: outcomeUnchanged}, nil
		}
		return fileOutcome{}, errors.Wrap(errors.KindPermission, "index.processFile", err)
	}
	hash := ident.FileHash(content)

	rec, err := d.State.GetFile(j.ctx, j.project.ID, relPath)
	if err != nil && errors.KindOf(err) != errors.KindNotFound {
		return fileOutcome{}, err
	}
	if !force && rec != nil && rec.ContentHash == hash &&
		rec.IndexingVersion == state.IndexingVersion && rec.Status == state.FileStatusIndexed {
		return fileOutcome{status: outcomeUnchanged}, nil
	}

	language := scanner.DetectLanguage(relPath)
	chunks := d.Splitter.ChunkFile(j.ctx, j.project.ID, relPath, content, language)
	entities, rels := d.Extractor.Extract(j.ctx, content, language, relPath, chunks)

	points, err := j.embedChunks(relPath, chunks)
	if err != nil {
		return fileOutcome{}, err
	}

	if err := j.commitFile(relPath, points, entities, rels); err != nil {
		return fileOutcome{}, err
	}

	info, statErr := os.Stat(abs)
	var modTime time.Time
	var size int64
	if statErr == nil {
		modTime = info.ModTime().UTC()
		size = info.Size()
	}
	record := &state.FileRecord{
		ProjectID:       j.project.ID,
		RelativePath:    relPath,
		ContentHash:     hash,
		Size:            size,
		LastModified:    modTime,
		LastIndexed:     time.Now().UTC(),
		IndexingVersion: state.IndexingVersion,
		ChunkCount:      len(chunks),
		Language:        language,
		Status:          state.FileStatusIndexed,
	}
	if err := d.State.UpsertFile(j.ctx, record); err != nil {
		return fileOutcome{}, err
	}
	return fileOutcome{status: outcomeIndexed, chunks: len(chunks), entities: len(entities)}, nil
}

// embedChunks turns chunk contents into vector points, batching by
// the pressure-adjusted batch size.
func (j *job) embedChunks(relPath string, chunks []*chunk.Chunk) ([]vectorstore.Point, error) {
	d := j.deps()
	points := make([]vectorstore.Point, 0, len(chunks))

	for start := 0; start < len(chunks); {
		if err := j.ctx.Err(); err != nil {
			return nil, err
		}
		size := j.embedBatchSize()
		end := start + size
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := errors.RetryWithResult(j.ctx, j.retryConfig(), func() ([][]float32, error) {
			return d.Embedder.Embed(j.ctx, texts)
		})
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, errors.Validation("index.embedChunks", "embedder returned a short batch")
		}
		for i, c := range batch {
			points = append(points, pointFromChunk(j.project.ID, relPath, c, vectors[i]))
		}
		start = end
	}
	return points, nil
}

// commitFile performs the two-store commit for one file: delete both
// stores' view of the path, then write vectors, then vertices, then
// edges. The FileRecord update happens only after both stores
// succeed, so a crash in between is repaired by the next pass.
func (j *job) commitFile(relPath string, points []vectorstore.Point, entities []*extract.Entity, rels []*extract.Relationship) error {
	if err := j.removeArtifacts(relPath); err != nil {
		return err
	}

	d := j.deps()
	retry := j.retryConfig()

	if len(points) > 0 {
		err := errors.Retry(j.ctx, retry, func() error {
			return d.Vectors.UpsertPoints(j.ctx, j.project.CollectionName, points)
		})
		if err != nil {
			return err
		}
	}
	return j.commitGraph(entities, rels)
}

func (j *job) commitGraph(entities []*extract.Entity, rels []*extract.Relationship) error {
	d := j.deps()
	retry := j.retryConfig()

	if len(entities) > 0 {
		vertices := make([]graphstore.Vertex, len(entities))
		for i, e := range entities {
			vertices[i] = vertexFromEntity(e)
		}
		err := errors.Retry(j.ctx, retry, func() error {
			return d.Graph.UpsertVertices(j.ctx, j.project.SpaceName, vertices)
		})
		if err != nil {
			return err
		}
	}
	if len(rels) > 0 {
		edges := make([]graphstore.Edge, len(rels))
		for i, r := range rels {
			edges[i] = edgeFromRelationship(r)
		}
		err := errors.Retry(j.ctx, retry, func() error {
			return d.Graph.UpsertEdges(j.ctx, j.project.SpaceName, edges)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// removeArtifacts deletes the stored representation of a path from
// both stores, vectors first.
func (j *job) removeArtifacts(relPath string) error {
	d := j.deps()
	retry := j.retryConfig()

	err := errors.Retry(j.ctx, retry, func() error {
		return d.Vectors.DeleteByFilter(j.ctx, j.project.CollectionName, vectorstore.Filter{
			ProjectID:    j.project.ID,
			RelativePath: relPath,
		})
	})
	if err != nil {
		return err
	}
	return errors.Retry(j.ctx, retry, func() error {
		return d.Graph.DeleteBySourcePath(j.ctx, j.project.SpaceName, relPath)
	})
}

// removeFile removes stored artifacts and the FileRecord.
func (j *job) removeFile(relPath string) error {
	if err := j.removeArtifacts(relPath); err != nil {
		return err
	}
	return j.deps().State.DeleteFile(j.ctx, j.project.ID, relPath)
}

// markFailed records a per-file failure without failing the job.
func (j *job) markFailed(relPath string, cause error) {
	msg := cause.Error()
	if len(msg) > 500 {
		msg = msg[:500]
	}
	record := &state.FileRecord{
		ProjectID:       j.project.ID,
		RelativePath:    relPath,
		IndexingVersion: state.IndexingVersion,
		Language:        scanner.DetectLanguage(relPath),
		Status:          state.FileStatusFailed,
		ErrorMessage:    msg,
	}
	_ = j.deps().State.UpsertFile(j.ctx, record)
}

func (j *job) retryConfig() errors.RetryConfig {
	d := j.deps()
	cfg := errors.DefaultRetryConfig()
	if d.Indexing.RetryAttempts > 0 {
		cfg.MaxRetries = d.Indexing.RetryAttempts
	}
	if d.Indexing.RetryDelay > 0 {
		cfg.InitialDelay = d.Indexing.RetryDelay
	}
	return cfg
}
