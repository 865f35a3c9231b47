package watcher

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/codescope/codescope/internal/ignore"
)

// pollEvent is a raw change observed by the polling fallback.
type pollEvent struct {
	Op      rawOp
	RelPath string
	IsDir   bool
}

type pollMeta struct {
	modTime time.Time
	size    int64
}

// poller is the fallback change source for platforms where fsnotify
// cannot be initialized. It walks the tree on an interval and diffs
// modification times and sizes against the previous snapshot.
type poller struct {
	interval time.Duration
	out      chan pollEvent
	stopCh   chan struct{}
	stopOnce sync.Once
	known    map[string]pollMeta
}

func newPoller(interval time.Duration) *poller {
	return &poller{
		interval: interval,
		out:      make(chan pollEvent, 256),
		stopCh:   make(chan struct{}),
		known:    make(map[string]pollMeta),
	}
}

func (p *poller) events() <-chan pollEvent { return p.out }

func (p *poller) stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// run blocks, emitting diffs every interval. The first walk only
// builds the baseline snapshot.
func (p *poller) run(ctx context.Context, root string, resolver func() *ignore.Resolver) error {
	p.known = p.snapshot(root, resolver())

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			p.diff(root, resolver())
		}
	}
}

func (p *poller) snapshot(root string, res *ignore.Resolver) map[string]pollMeta {
	seen := make(map[string]pollMeta)
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if res.Ignored(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		seen[rel] = pollMeta{modTime: info.ModTime(), size: info.Size()}
		return nil
	})
	return seen
}

func (p *poller) diff(root string, res *ignore.Resolver) {
	current := p.snapshot(root, res)

	for rel, meta := range current {
		prev, ok := p.known[rel]
		switch {
		case !ok:
			p.send(pollEvent{Op: opCreate, RelPath: rel})
		case !meta.modTime.Equal(prev.modTime) || meta.size != prev.size:
			p.send(pollEvent{Op: opModify, RelPath: rel})
		}
	}
	for rel := range p.known {
		if _, ok := current[rel]; !ok {
			p.send(pollEvent{Op: opDelete, RelPath: rel})
		}
	}
	p.known = current
}

func (p *poller) send(ev pollEvent) {
	select {
	case p.out <- ev:
	case <-p.stopCh:
	}
}
