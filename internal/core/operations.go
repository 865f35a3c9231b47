package core

import (
	"context"
	"time"

	"github.com/codescope/codescope/internal/errors"
	"github.com/codescope/codescope/internal/index"
	"github.com/codescope/codescope/internal/state"
	"github.com/codescope/codescope/internal/watcher"
)

// IndexOptions tune a single indexing run.
type IndexOptions struct {
	// Force cancels any in-flight job for the same project before
	// starting.
	Force bool
	// Progress, when non-nil, receives coordinator progress updates.
	Progress chan<- index.Progress
}

// Index registers the project rooted at absPath (if needed) and runs a
// full indexing pass over it.
func (c *Core) Index(ctx context.Context, absPath string, opts IndexOptions) (*index.Result, error) {
	project, err := c.state.RegisterProject(ctx, absPath)
	if err != nil {
		return nil, err
	}
	c.exportMapping(ctx)

	unlock, err := c.lockProject(project.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return c.coord.IndexProject(ctx, project, index.Options{
		ForceCancel: opts.Force,
		Progress:    opts.Progress,
	})
}

// IncrementalUpdate diffs the project against its last indexed
// snapshot and applies only the detected changes. A project with no
// indexed files yet falls back to a full pass.
func (c *Core) IncrementalUpdate(ctx context.Context, absPath string, opts IndexOptions) (*index.Result, error) {
	project, err := c.resolve(ctx, absPath)
	if err != nil {
		return nil, err
	}

	unlock, err := c.lockProject(project.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	records, err := c.state.ListFiles(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	coordOpts := index.Options{ForceCancel: opts.Force, Progress: opts.Progress}
	if len(records) == 0 {
		return c.coord.IndexProject(ctx, project, coordOpts)
	}
	return c.coord.UpdateProject(ctx, project, coordOpts)
}

// Delete removes the project's vectors, graph space, file records,
// and registry entry.
func (c *Core) Delete(ctx context.Context, absPath string) error {
	project, err := c.resolve(ctx, absPath)
	if err != nil {
		return err
	}

	unlock, err := c.lockProject(project.ID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := c.coord.DeleteProject(ctx, project); err != nil {
		return err
	}
	c.exportMapping(ctx)
	return nil
}

// ProjectStatus summarizes one project's indexing state.
type ProjectStatus struct {
	Project  *state.Project
	Active   index.State
	Files    int
	Indexed  int
	Pending  int
	Failed   int
	Skipped  int
	Chunks   int
	Memory   string
	Dropped  uint64
	Watching bool
}

// Status reports the indexing state of the project at absPath.
func (c *Core) Status(ctx context.Context, absPath string) (*ProjectStatus, error) {
	project, err := c.resolve(ctx, absPath)
	if err != nil {
		return nil, err
	}

	records, err := c.state.ListFiles(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	st := &ProjectStatus{
		Project: project,
		Active:  c.coord.Active(project.ID),
		Files:   len(records),
		Memory:  c.guard.Level().String(),
	}
	for _, rec := range records {
		st.Chunks += rec.ChunkCount
		switch rec.Status {
		case state.FileStatusIndexed:
			st.Indexed++
		case state.FileStatusPending:
			st.Pending++
		case state.FileStatusFailed:
			st.Failed++
		case state.FileStatusSkipped:
			st.Skipped++
		}
	}
	return st, nil
}

// ListProjects returns every registered project.
func (c *Core) ListProjects(ctx context.Context) ([]*state.Project, error) {
	return c.state.ListProjects(ctx)
}

// Watch runs continuous incremental indexing for the project at
// absPath until ctx is cancelled. It performs an initial update, then
// applies batched filesystem changes as they arrive.
func (c *Core) Watch(ctx context.Context, absPath string, opts IndexOptions) error {
	project, err := c.state.RegisterProject(ctx, absPath)
	if err != nil {
		return err
	}
	c.exportMapping(ctx)

	unlock, err := c.lockProject(project.ID)
	if err != nil {
		return err
	}
	defer unlock()

	coordOpts := index.Options{ForceCancel: opts.Force, Progress: opts.Progress}
	if _, err := c.coord.UpdateProject(ctx, project, coordOpts); err != nil {
		return err
	}

	wopts := watcher.FromConfig(c.cfg.Watcher)
	wopts.Include = c.cfg.Paths.Include
	wopts.Exclude = c.cfg.Paths.Exclude
	w, err := watcher.New(project.Path, wopts, c.logger)
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	records, err := c.state.ListFiles(ctx, project.ID)
	if err != nil {
		return err
	}
	hashes := make(map[string]string, len(records))
	for rel, rec := range records {
		hashes[rel] = rec.ContentHash
	}
	w.Seed(hashes)

	// Start blocks for the watcher's lifetime, so it runs on its own
	// goroutine while this one consumes the event channels.
	startErr := make(chan error, 1)
	go func() { startErr <- w.Start(ctx) }()

	c.logger.Info("watching project",
		"project", project.ID,
		"path", project.Path)

	for {
		batch, err := c.collectBatch(ctx, w, startErr)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			continue
		}
		if _, err := c.coord.ApplyChanges(ctx, project, batch, coordOpts); err != nil {
			if errors.KindOf(err) == errors.KindConflict {
				c.logger.Warn("change batch skipped, job in flight", "project", project.ID)
				continue
			}
			c.logger.Error("change batch failed",
				"project", project.ID,
				"error", err)
		}
	}
}

// collectBatch blocks for the next event, then drains briefly so
// bursts land in one coordinator call.
func (c *Core) collectBatch(ctx context.Context, w *watcher.Watcher, startErr <-chan error) ([]index.Change, error) {
	var batch []index.Change

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-startErr:
		if err == nil {
			err = errors.New(errors.KindInternal, "core.Watch", "watcher stopped")
		}
		return nil, err
	case err := <-w.Errors():
		c.logger.Warn("watcher error", "error", err)
		return nil, nil
	case ev, ok := <-w.Events():
		if !ok {
			return nil, errors.New(errors.KindInternal, "core.Watch", "watcher closed")
		}
		batch = append(batch, changeFromEvent(ev))
	}

	drain := time.NewTimer(100 * time.Millisecond)
	defer drain.Stop()
	for {
		select {
		case ev, ok := <-w.Events():
			if !ok {
				return batch, nil
			}
			batch = append(batch, changeFromEvent(ev))
		case <-drain.C:
			return batch, nil
		case <-ctx.Done():
			return batch, nil
		}
	}
}

func changeFromEvent(ev watcher.ChangeEvent) index.Change {
	ch := index.Change{
		RelPath:      ev.RelPath,
		OldRelPath:   ev.OldRelPath,
		PreviousHash: ev.PreviousHash,
		CurrentHash:  ev.CurrentHash,
	}
	switch ev.Kind {
	case watcher.KindCreated:
		ch.Kind = index.ChangeCreated
	case watcher.KindModified:
		ch.Kind = index.ChangeModified
	case watcher.KindDeleted:
		ch.Kind = index.ChangeDeleted
	case watcher.KindRenamed:
		ch.Kind = index.ChangeRenamed
	case watcher.KindRescan:
		ch.Kind = index.ChangeRescan
	}
	return ch
}

func (c *Core) resolve(ctx context.Context, absPath string) (*state.Project, error) {
	return c.state.ResolveProject(ctx, absPath)
}
