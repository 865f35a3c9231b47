package watcher

import (
	"time"

	"github.com/codescope/codescope/internal/config"
)

// EventKind classifies a filesystem change after debouncing, hash
// comparison, and rename recognition.
type EventKind string

const (
	KindCreated  EventKind = "created"
	KindModified EventKind = "modified"
	KindDeleted  EventKind = "deleted"
	KindRenamed  EventKind = "renamed"
	// KindRescan is emitted when ignore rules or project configuration
	// change. The consumer should re-plan the whole project rather than
	// apply a single-file update.
	KindRescan EventKind = "rescan"
)

// ChangeEvent is a single post-processed filesystem change. Paths are
// relative to the watched root with forward slashes.
type ChangeEvent struct {
	Kind         EventKind
	RelPath      string
	OldRelPath   string // set only for KindRenamed
	PreviousHash string // last known content hash, empty for created
	CurrentHash  string // empty for deleted
	Size         int64
	Timestamp    time.Time
}

// Options configures a Watcher. Zero values are replaced by the
// defaults from config.New().
type Options struct {
	DebounceInterval time.Duration
	RenameWindow     time.Duration
	MaxEventQueue    int
	PollInterval     time.Duration

	// Include and Exclude are extra glob patterns layered over the
	// project's ignore files, in the same form the scanner accepts.
	Include []string
	Exclude []string
}

// WithDefaults returns a copy of o with zero fields filled in.
func (o Options) WithDefaults() Options {
	def := config.New().Watcher
	if o.DebounceInterval <= 0 {
		o.DebounceInterval = def.DebounceInterval
	}
	if o.RenameWindow <= 0 {
		o.RenameWindow = def.RenameWindow
	}
	if o.MaxEventQueue <= 0 {
		o.MaxEventQueue = def.MaxEventQueue
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	return o
}

// FromConfig builds Options from a WatcherConfig section.
func FromConfig(cfg config.WatcherConfig) Options {
	return Options{
		DebounceInterval: cfg.DebounceInterval,
		RenameWindow:     cfg.RenameWindow,
		MaxEventQueue:    cfg.MaxEventQueue,
		PollInterval:     cfg.PollInterval,
	}.WithDefaults()
}
