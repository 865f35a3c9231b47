package watcher

import (
	"sync"
	"time"
)

// rawOp is a coarse filesystem operation before hash comparison and
// rename recognition refine it into an EventKind.
type rawOp int

const (
	opCreate rawOp = iota + 1
	opModify
	opDelete
	opRescan
)

type rawEvent struct {
	Op        rawOp
	RelPath   string
	Timestamp time.Time
}

// debouncer coalesces rapid raw events per path and emits them in
// batches after a quiet window. Editors commonly produce several
// events for a single save; downstream only needs the net effect.
type debouncer struct {
	window time.Duration
	out    chan []rawEvent

	mu             sync.Mutex
	pending        map[string]rawEvent
	order          []string
	timer          *time.Timer
	closed         bool
	droppedBatches uint64
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{
		window:  window,
		out:     make(chan []rawEvent, 16),
		pending: make(map[string]rawEvent),
	}
}

// add records a raw event, merging it with any pending event for the
// same path, and (re)arms the flush timer.
func (d *debouncer) add(ev rawEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	prev, exists := d.pending[ev.RelPath]
	if !exists {
		d.pending[ev.RelPath] = ev
		d.order = append(d.order, ev.RelPath)
	} else {
		merged, keep := coalesce(prev, ev)
		if keep {
			d.pending[ev.RelPath] = merged
		} else {
			delete(d.pending, ev.RelPath)
		}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// coalesce merges two raw events for the same path. The second return
// is false when the pair cancels out entirely.
func coalesce(old, next rawEvent) (rawEvent, bool) {
	switch {
	case old.Op == opCreate && next.Op == opModify:
		// Still a brand-new file as far as the index is concerned.
		next.Op = opCreate
		return next, true
	case old.Op == opCreate && next.Op == opDelete:
		// Created and removed within the window; nothing to do.
		return rawEvent{}, false
	case old.Op == opModify && next.Op == opDelete:
		return next, true
	case old.Op == opDelete && next.Op == opCreate:
		// Replaced in place, e.g. an atomic save via rename.
		next.Op = opModify
		return next, true
	case old.Op == opRescan || next.Op == opRescan:
		next.Op = opRescan
		return next, true
	default:
		return next, true
	}
}

// flush emits all pending events in arrival order. The lock is held
// across the send so close cannot race with it; the channel is
// buffered and the consumer never takes this lock.
func (d *debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || len(d.pending) == 0 {
		return
	}
	batch := make([]rawEvent, 0, len(d.pending))
	for _, path := range d.order {
		if ev, ok := d.pending[path]; ok {
			batch = append(batch, ev)
		}
	}
	d.pending = make(map[string]rawEvent)
	d.order = d.order[:0]
	select {
	case d.out <- batch:
	default:
		d.droppedBatches++
	}
}

func (d *debouncer) output() <-chan []rawEvent { return d.out }

func (d *debouncer) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.out)
}
