package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/codescope/codescope/internal/errors"
	"github.com/codescope/codescope/internal/ident"
	"github.com/codescope/codescope/internal/ignore"
)

// hashCacheSize bounds the relative-path to content-hash cache used
// for modification suppression and rename recognition.
const hashCacheSize = 8192

// Watcher observes a project root and emits ChangeEvents. It prefers
// fsnotify and falls back to periodic polling when the platform does
// not support native notifications.
type Watcher struct {
	root   string
	opts   Options
	logger *slog.Logger

	mu       sync.RWMutex
	resolver *ignore.Resolver

	fsw     *fsnotify.Watcher
	poller  *poller
	native  bool
	deb     *debouncer
	hashes  *lru.Cache[string, string]
	events  chan ChangeEvent
	errs    chan error
	stopCh  chan struct{}
	stopped atomic.Bool
	wg      sync.WaitGroup
	dropped atomic.Uint64

	renameMu sync.Mutex
	holds    []*deleteHold
}

// deleteHold is a deleted-file event held open for the rename window
// so a matching create can upgrade the pair to a rename.
type deleteHold struct {
	relPath string
	hash    string
	size    int64
	at      time.Time
	done    bool
	timer   *time.Timer
}

// New builds a watcher for the given project root. The root must
// exist; ignore rules are loaded from it immediately.
func New(root string, opts Options, logger *slog.Logger) (*Watcher, error) {
	const op = "watcher.New"

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(errors.KindValidation, op, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, errors.NotFound(op, "watch root does not exist: "+absRoot)
	}
	if !info.IsDir() {
		return nil, errors.Validation(op, "watch root is not a directory: "+absRoot)
	}

	opts = opts.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	resolver, err := ignore.Load(absRoot, opts.Include, opts.Exclude)
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, op, err)
	}

	hashes, err := lru.New[string, string](hashCacheSize)
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, op, err)
	}

	w := &Watcher{
		root:     absRoot,
		opts:     opts,
		logger:   logger.With("component", "watcher", "root", absRoot),
		resolver: resolver,
		deb:      newDebouncer(opts.DebounceInterval),
		hashes:   hashes,
		events:   make(chan ChangeEvent, opts.MaxEventQueue),
		errs:     make(chan error, 10),
		stopCh:   make(chan struct{}),
	}

	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		w.fsw = fsw
		w.native = true
	} else {
		w.logger.Warn("fsnotify unavailable, falling back to polling", "error", err)
		w.poller = newPoller(opts.PollInterval)
	}
	return w, nil
}

// Seed primes the hash cache with the last indexed content hashes,
// keyed by relative path. Without seeding, the first modification of
// every file is reported even when content is unchanged, and renames
// of files untouched since startup cannot be recognized.
func (w *Watcher) Seed(hashes map[string]string) {
	for rel, h := range hashes {
		w.hashes.Add(filepath.ToSlash(rel), h)
	}
}

// Events returns the post-processed change stream. When the queue is
// full the oldest events are dropped; consumers should treat gaps as
// a signal to re-plan.
func (w *Watcher) Events() <-chan ChangeEvent { return w.events }

// Errors returns non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error { return w.errs }

// Dropped reports how many events were discarded due to queue overflow.
func (w *Watcher) Dropped() uint64 { return w.dropped.Load() }

// Start begins watching. It blocks until ctx is cancelled or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) error {
	w.wg.Add(1)
	go w.processBatches(ctx)

	if w.native {
		return w.runFsnotify(ctx)
	}
	return w.runPolling(ctx)
}

// Stop shuts the watcher down and closes the event channel.
func (w *Watcher) Stop() error {
	if !w.stopped.CompareAndSwap(false, true) {
		return nil
	}
	close(w.stopCh)
	if w.fsw != nil {
		_ = w.fsw.Close()
	}
	if w.poller != nil {
		w.poller.stop()
	}
	w.deb.close()
	w.wg.Wait()
	w.renameMu.Lock()
	for _, h := range w.holds {
		h.done = true
		if h.timer != nil {
			h.timer.Stop()
		}
	}
	w.holds = nil
	w.renameMu.Unlock()
	close(w.events)
	return nil
}

func (w *Watcher) runFsnotify(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return errors.Wrap(errors.KindInternal, "watcher.Start", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleFsnotify(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) runPolling(ctx context.Context) error {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case ev, ok := <-w.poller.events():
				if !ok {
					return
				}
				w.ingest(ev.Op, ev.RelPath, ev.IsDir)
			}
		}
	}()
	return w.poller.run(ctx, w.root, w.snapshotResolver)
}

// addRecursive registers root and every non-ignored directory under
// it with fsnotify.
func (w *Watcher) addRecursive(root string) error {
	resolver := w.snapshotResolver()
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && resolver.Ignored(rel, true) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) handleFsnotify(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	isDir := false
	if info, statErr := os.Stat(ev.Name); statErr == nil {
		isDir = info.IsDir()
	}

	var op rawOp
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = opCreate
		if isDir {
			if !w.snapshotResolver().Ignored(rel, true) {
				_ = w.fsw.Add(ev.Name)
			}
			return
		}
	case ev.Op&fsnotify.Write != 0:
		op = opModify
	case ev.Op&fsnotify.Remove != 0:
		op = opDelete
	case ev.Op&fsnotify.Rename != 0:
		// fsnotify reports the vacated path; the new path arrives as a
		// separate Create. Rename pairing happens on the hash level.
		op = opDelete
	default:
		return
	}

	w.ingest(op, rel, isDir)
}

// ingest applies ignore filtering and meta-file detection, then hands
// the event to the debouncer.
func (w *Watcher) ingest(op rawOp, rel string, isDir bool) {
	if isDir {
		return
	}

	base := filepath.Base(rel)
	switch base {
	case ".gitignore", ignore.IndexIgnoreFile:
		w.reloadIgnoreRules()
		w.deb.add(rawEvent{Op: opRescan, RelPath: rel, Timestamp: time.Now()})
		return
	case ".codescope.yaml", ".codescope.yml":
		w.deb.add(rawEvent{Op: opRescan, RelPath: rel, Timestamp: time.Now()})
		return
	}

	if w.snapshotResolver().Ignored(rel, false) {
		return
	}
	w.deb.add(rawEvent{Op: op, RelPath: rel, Timestamp: time.Now()})
}

func (w *Watcher) snapshotResolver() *ignore.Resolver {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.resolver
}

func (w *Watcher) reloadIgnoreRules() {
	resolver, err := ignore.Load(w.root, w.opts.Include, w.opts.Exclude)
	if err != nil {
		w.emitError(err)
		return
	}
	w.mu.Lock()
	w.resolver = resolver
	w.mu.Unlock()
}

// processBatches turns debounced raw events into ChangeEvents.
func (w *Watcher) processBatches(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.deb.output():
			if !ok {
				return
			}
			for _, ev := range batch {
				w.process(ev)
			}
		}
	}
}

func (w *Watcher) process(ev rawEvent) {
	switch ev.Op {
	case opRescan:
		w.emit(ChangeEvent{Kind: KindRescan, RelPath: ev.RelPath, Timestamp: ev.Timestamp})
	case opDelete:
		w.processDelete(ev)
	case opCreate, opModify:
		w.processUpsert(ev)
	}
}

// processDelete holds the event open for the rename window before
// committing it, so a create with identical content can claim it.
func (w *Watcher) processDelete(ev rawEvent) {
	prevHash, _ := w.hashes.Get(ev.RelPath)
	w.hashes.Remove(ev.RelPath)

	hold := &deleteHold{relPath: ev.RelPath, hash: prevHash, at: ev.Timestamp}
	w.renameMu.Lock()
	w.holds = append(w.holds, hold)
	w.renameMu.Unlock()

	// Emission happens under renameMu so Stop can fence out late timer
	// fires before closing the event channel.
	hold.timer = time.AfterFunc(w.opts.RenameWindow, func() {
		w.renameMu.Lock()
		defer w.renameMu.Unlock()
		if hold.done {
			return
		}
		hold.done = true
		w.removeHold(hold)
		w.emit(ChangeEvent{
			Kind:         KindDeleted,
			RelPath:      hold.relPath,
			PreviousHash: hold.hash,
			Timestamp:    time.Now(),
		})
	})
}

// processUpsert hashes the file and classifies the change as created,
// modified, renamed, or a no-op.
func (w *Watcher) processUpsert(ev rawEvent) {
	abs := filepath.Join(w.root, filepath.FromSlash(ev.RelPath))
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		// Vanished before we got to it; the delete event will follow.
		return
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		w.emitError(err)
		return
	}
	curHash := ident.FileHash(content)
	prevHash, hadRecord := w.hashes.Get(ev.RelPath)
	w.hashes.Add(ev.RelPath, curHash)

	// A delete followed by a create of identical content at another
	// path within the window is a rename.
	if !hadRecord {
		if hold := w.claimHold(curHash); hold != nil {
			w.emit(ChangeEvent{
				Kind:         KindRenamed,
				RelPath:      ev.RelPath,
				OldRelPath:   hold.relPath,
				PreviousHash: hold.hash,
				CurrentHash:  curHash,
				Size:         info.Size(),
				Timestamp:    ev.Timestamp,
			})
			return
		}
	}

	switch {
	case !hadRecord:
		w.emit(ChangeEvent{
			Kind:        KindCreated,
			RelPath:     ev.RelPath,
			CurrentHash: curHash,
			Size:        info.Size(),
			Timestamp:   ev.Timestamp,
		})
	case prevHash != curHash:
		w.emit(ChangeEvent{
			Kind:         KindModified,
			RelPath:      ev.RelPath,
			PreviousHash: prevHash,
			CurrentHash:  curHash,
			Size:         info.Size(),
			Timestamp:    ev.Timestamp,
		})
	default:
		// Touched but unchanged; suppress.
	}
}

// claimHold finds and consumes an open delete hold with the given
// hash. Returns nil when no match exists or the hash is unknown.
func (w *Watcher) claimHold(hash string) *deleteHold {
	if hash == "" {
		return nil
	}
	w.renameMu.Lock()
	defer w.renameMu.Unlock()
	for _, h := range w.holds {
		if !h.done && h.hash == hash {
			h.done = true
			if h.timer != nil {
				h.timer.Stop()
			}
			w.removeHold(h)
			return h
		}
	}
	return nil
}

// removeHold deletes the hold from the slice. Caller holds renameMu.
func (w *Watcher) removeHold(target *deleteHold) {
	for i, h := range w.holds {
		if h == target {
			w.holds = append(w.holds[:i], w.holds[i+1:]...)
			return
		}
	}
}

// emit delivers an event, dropping the oldest queued event when the
// buffer is full.
func (w *Watcher) emit(ev ChangeEvent) {
	if w.stopped.Load() {
		return
	}
	for {
		select {
		case w.events <- ev:
			return
		default:
		}
		select {
		case old := <-w.events:
			w.dropped.Add(1)
			w.logger.Warn("event queue full, dropping oldest event",
				"dropped_path", old.RelPath, "dropped_kind", string(old.Kind))
		default:
		}
	}
}

func (w *Watcher) emitError(err error) {
	select {
	case w.errs <- err:
	default:
	}
}
