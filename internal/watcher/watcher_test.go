package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codescope/codescope/internal/ident"
)

func testOptions() Options {
	return Options{
		DebounceInterval: 50 * time.Millisecond,
		RenameWindow:     250 * time.Millisecond,
		MaxEventQueue:    100,
		PollInterval:     time.Hour, // polling never ticks in tests
	}
}

// startWatcher runs w.Start in the background and returns a cleanup
// that stops it.
func startWatcher(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Start(ctx)
	}()
	t.Cleanup(func() {
		_ = w.Stop()
		cancel()
		<-done
	})
	// Give fsnotify a moment to register the tree.
	time.Sleep(50 * time.Millisecond)
}

func waitEvent(t *testing.T, w *Watcher) ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return ChangeEvent{}
	}
}

func expectQuiet(t *testing.T, w *Watcher, d time.Duration) {
	t.Helper()
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event %s for %s", ev.Kind, ev.RelPath)
	case <-time.After(d):
	}
}

func TestCoalesce(t *testing.T) {
	tests := []struct {
		name   string
		old    rawOp
		next   rawOp
		want   rawOp
		wantOK bool
	}{
		{"create then modify is create", opCreate, opModify, opCreate, true},
		{"create then delete cancels", opCreate, opDelete, 0, false},
		{"modify then delete is delete", opModify, opDelete, opDelete, true},
		{"delete then create is modify", opDelete, opCreate, opModify, true},
		{"modify then modify is modify", opModify, opModify, opModify, true},
		{"rescan wins", opRescan, opModify, opRescan, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged, ok := coalesce(
				rawEvent{Op: tt.old, RelPath: "a.go"},
				rawEvent{Op: tt.next, RelPath: "a.go"},
			)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, merged.Op)
			}
		})
	}
}

func TestDebouncerBatchesPerPath(t *testing.T) {
	d := newDebouncer(30 * time.Millisecond)
	defer d.close()

	now := time.Now()
	d.add(rawEvent{Op: opCreate, RelPath: "a.go", Timestamp: now})
	d.add(rawEvent{Op: opModify, RelPath: "a.go", Timestamp: now})
	d.add(rawEvent{Op: opModify, RelPath: "b.go", Timestamp: now})

	select {
	case batch := <-d.output():
		require.Len(t, batch, 2)
		assert.Equal(t, "a.go", batch[0].RelPath)
		assert.Equal(t, opCreate, batch[0].Op)
		assert.Equal(t, "b.go", batch[1].RelPath)
	case <-time.After(time.Second):
		t.Fatal("debouncer never flushed")
	}
}

func TestWatcherCreateModifyDelete(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, testOptions(), nil)
	require.NoError(t, err)
	startWatcher(t, w)

	path := filepath.Join(root, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o644))

	ev := waitEvent(t, w)
	assert.Equal(t, KindCreated, ev.Kind)
	assert.Equal(t, "main.go", ev.RelPath)
	assert.Equal(t, ident.FileHash([]byte("package main\n")), ev.CurrentHash)
	assert.Empty(t, ev.PreviousHash)

	// Rewriting identical content must not produce an event.
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o644))
	expectQuiet(t, w, 300*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc main() {}\n"), 0o644))
	ev = waitEvent(t, w)
	assert.Equal(t, KindModified, ev.Kind)
	assert.Equal(t, ident.FileHash([]byte("package main\n")), ev.PreviousHash)
	assert.NotEqual(t, ev.PreviousHash, ev.CurrentHash)

	prevHash := ev.CurrentHash
	require.NoError(t, os.Remove(path))
	ev = waitEvent(t, w)
	assert.Equal(t, KindDeleted, ev.Kind)
	assert.Equal(t, "main.go", ev.RelPath)
	assert.Equal(t, prevHash, ev.PreviousHash)
	assert.Empty(t, ev.CurrentHash)
}

func TestWatcherRecognizesRename(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, testOptions(), nil)
	require.NoError(t, err)
	startWatcher(t, w)

	content := []byte("package util\n\nfunc Double(n int) int { return n * 2 }\n")
	oldPath := filepath.Join(root, "old.go")
	require.NoError(t, os.WriteFile(oldPath, content, 0o644))

	ev := waitEvent(t, w)
	require.Equal(t, KindCreated, ev.Kind)

	require.NoError(t, os.Rename(oldPath, filepath.Join(root, "new.go")))
	ev = waitEvent(t, w)
	assert.Equal(t, KindRenamed, ev.Kind)
	assert.Equal(t, "new.go", ev.RelPath)
	assert.Equal(t, "old.go", ev.OldRelPath)
	assert.Equal(t, ident.FileHash(content), ev.CurrentHash)
	assert.Equal(t, ev.PreviousHash, ev.CurrentHash)
}

func TestWatcherSeedSuppressesUnchangedWrites(t *testing.T) {
	root := t.TempDir()
	content := []byte("package seeded\n")
	w, err := New(root, testOptions(), nil)
	require.NoError(t, err)
	w.Seed(map[string]string{"seeded.go": ident.FileHash(content)})
	startWatcher(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(root, "seeded.go"), content, 0o644))
	expectQuiet(t, w, 300*time.Millisecond)
}

func TestWatcherIgnoresExcludedPaths(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "pkg"), 0o755))

	w, err := New(root, testOptions(), nil)
	require.NoError(t, err)
	startWatcher(t, w)

	require.NoError(t, os.WriteFile(
		filepath.Join(root, "node_modules", "pkg", "index.js"), []byte("x"), 0o644))
	expectQuiet(t, w, 300*time.Millisecond)
}

func TestWatcherRescanOnIgnoreRuleChange(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, testOptions(), nil)
	require.NoError(t, err)
	startWatcher(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("generated/\n"), 0o644))
	ev := waitEvent(t, w)
	assert.Equal(t, KindRescan, ev.Kind)

	// Newly ignored directories stop producing events.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "generated"), 0o755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "generated", "out.go"), []byte("x"), 0o644))
	expectQuiet(t, w, 300*time.Millisecond)
}

func TestWatcherRescanOnConfigChange(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, testOptions(), nil)
	require.NoError(t, err)
	startWatcher(t, w)

	require.NoError(t, os.WriteFile(
		filepath.Join(root, ".codescope.yaml"), []byte("indexing:\n  max_file_size: 1048576\n"), 0o644))
	ev := waitEvent(t, w)
	assert.Equal(t, KindRescan, ev.Kind)
}

func TestWatcherRootValidation(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), testOptions(), nil)
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = New(file, testOptions(), nil)
	require.Error(t, err)
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	w, err := New(t.TempDir(), testOptions(), nil)
	require.NoError(t, err)
	startWatcher(t, w)
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}

func TestPollerDiff(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("one"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.go"), []byte("two"), 0o644))

	w, err := New(root, testOptions(), nil)
	require.NoError(t, err)

	p := newPoller(time.Hour)
	p.known = p.snapshot(root, w.snapshotResolver())
	require.Len(t, p.known, 2)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("one changed"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(root, "b.go")))
	require.NoError(t, os.WriteFile(filepath.Join(root, "c.go"), []byte("three"), 0o644))

	p.diff(root, w.snapshotResolver())

	got := map[string]rawOp{}
	for i := 0; i < 3; i++ {
		select {
		case ev := <-p.events():
			got[ev.RelPath] = ev.Op
		case <-time.After(time.Second):
			t.Fatal("missing poll events")
		}
	}
	assert.Equal(t, opModify, got["a.go"])
	assert.Equal(t, opDelete, got["b.go"])
	assert.Equal(t, opCreate, got["c.go"])
}
