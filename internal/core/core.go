// Package core is the composition root: it owns the metadata store,
// the store clients, the embedder, the memory guard, and the indexing
// coordinator, and exposes the engine's public operations.
package core

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/codescope/codescope/internal/chunk"
	"github.com/codescope/codescope/internal/config"
	"github.com/codescope/codescope/internal/embed"
	"github.com/codescope/codescope/internal/errors"
	"github.com/codescope/codescope/internal/extract"
	"github.com/codescope/codescope/internal/graphstore"
	"github.com/codescope/codescope/internal/index"
	"github.com/codescope/codescope/internal/memguard"
	"github.com/codescope/codescope/internal/scanner"
	"github.com/codescope/codescope/internal/state"
	"github.com/codescope/codescope/internal/vectorstore"
)

// MappingFileName is the registry export kept next to the database.
const MappingFileName = "project-mapping.json"

// DataDir returns the engine's data directory, honoring XDG_DATA_HOME.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "codescope")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "codescope")
	}
	return filepath.Join(home, ".local", "share", "codescope")
}

// Core wires the engine together. Construct with New, release with
// Close. All state lives in fields; there are no package-level
// singletons.
type Core struct {
	cfg      *config.Config
	logger   *slog.Logger
	dataDir  string
	state    *state.Store
	vectors  *vectorstore.Client
	graph    *graphstore.Client
	embedder embed.Embedder
	guard    *memguard.Guard
	coord    *index.Coordinator
	scanner  *scanner.Scanner

	mu       sync.Mutex
	locks    map[string]*flock.Flock
	guardCtx context.CancelFunc
}

// Option customizes Core construction.
type Option func(*options)

type options struct {
	dataDir  string
	embedder embed.Embedder
	vectors  index.VectorStore
	graph    index.GraphStore
}

// WithDataDir overrides the data directory (tests use temp dirs).
func WithDataDir(dir string) Option {
	return func(o *options) { o.dataDir = dir }
}

// WithEmbedder injects a pre-built embedder.
func WithEmbedder(e embed.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithStores injects store implementations, bypassing the network
// clients.
func WithStores(v index.VectorStore, g index.GraphStore) Option {
	return func(o *options) { o.vectors = v; o.graph = g }
}

// New builds a Core from configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Core, error) {
	const op = "core.New"

	if cfg == nil {
		cfg = config.New()
	}
	if logger == nil {
		logger = slog.Default()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	dataDir := o.dataDir
	if dataDir == "" {
		dataDir = DataDir()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.Wrap(errors.KindPermission, op, err)
	}

	stateStore, err := state.Open(filepath.Join(dataDir, state.DefaultDBName))
	if err != nil {
		return nil, err
	}

	c := &Core{
		cfg:     cfg,
		logger:  logger,
		dataDir: dataDir,
		state:   stateStore,
		locks:   make(map[string]*flock.Flock),
	}

	c.scanner, err = scanner.New()
	if err != nil {
		_ = stateStore.Close()
		return nil, err
	}

	if o.embedder != nil {
		c.embedder = o.embedder
	} else {
		c.embedder, err = embed.NewFromConfig(cfg.Embeddings)
		if err != nil {
			_ = stateStore.Close()
			return nil, err
		}
	}

	var vectors index.VectorStore
	var graph index.GraphStore
	if o.vectors != nil {
		vectors, graph = o.vectors, o.graph
	} else {
		c.vectors = vectorstore.New(vectorstore.Config{
			URL:     cfg.VectorStore.URL,
			APIKey:  cfg.VectorStore.APIKey,
			Timeout: cfg.VectorStore.Timeout,
		})
		c.graph = graphstore.New(graphstore.Config{
			Addr:     cfg.GraphStore.Addr,
			Password: os.Getenv(cfg.GraphStore.PasswordEnv),
			Timeout:  cfg.GraphStore.Timeout,
		})
		vectors, graph = c.vectors, c.graph
	}

	c.guard = memguard.New(memguard.FromConfig(cfg.Memory), logger)
	if cached, ok := c.embedder.(*embed.CachedEmbedder); ok {
		c.guard.OnEmergency(cached.Purge)
	}
	guardCtx, cancel := context.WithCancel(context.Background())
	c.guardCtx = cancel
	go c.guard.Start(guardCtx)

	c.coord = index.New(index.Deps{
		State:     c.state,
		Vectors:   vectors,
		Graph:     graph,
		Embedder:  c.embedder,
		Scanner:   c.scanner,
		Splitter:  chunk.NewSplitter(splitterOptions(cfg.Files)),
		Extractor: extract.New(),
		Guard:     c.guard,
		Logger:    logger,
		Indexing:  cfg.Indexing,
		Files:     cfg.Files,
		Paths:     cfg.Paths,
	})
	return c, nil
}

// Close releases every owned resource. Safe to call once.
func (c *Core) Close() error {
	c.guardCtx()
	c.guard.Stop()

	c.mu.Lock()
	for _, l := range c.locks {
		_ = l.Unlock()
	}
	c.locks = make(map[string]*flock.Flock)
	c.mu.Unlock()

	var firstErr error
	if c.embedder != nil {
		if err := c.embedder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.vectors != nil {
		if err := c.vectors.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.graph != nil {
		if err := c.graph.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := c.state.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// splitterOptions maps the files section onto chunking options; zero
// values fall back to the splitter's own defaults.
func splitterOptions(files config.FilesConfig) chunk.Options {
	return chunk.Options{
		ChunkSize:    files.ChunkSize,
		OverlapSize:  files.OverlapSize,
		MinChunkSize: files.MinChunkSize,
		MaxChunkSize: files.MaxChunkSize,
	}
}

// lockProject takes the cross-process lock for a project. A held lock
// from another process is a conflict, not a wait.
func (c *Core) lockProject(projectID string) (func(), error) {
	const op = "core.lockProject"

	lockDir := filepath.Join(c.dataDir, "locks")
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, errors.Wrap(errors.KindPermission, op, err)
	}

	fl := flock.New(filepath.Join(lockDir, projectID+".lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, op, err)
	}
	if !ok {
		return nil, errors.Conflict(op, "project is locked by another process")
	}

	c.mu.Lock()
	c.locks[projectID] = fl
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.locks, projectID)
		c.mu.Unlock()
		_ = fl.Unlock()
	}, nil
}

// exportMapping refreshes the registry export; failures are logged,
// not fatal, since the database remains the source of truth.
func (c *Core) exportMapping(ctx context.Context) {
	path := filepath.Join(c.dataDir, MappingFileName)
	if err := c.state.ExportMapping(ctx, path); err != nil {
		c.logger.Warn("project mapping export failed", "error", err)
	}
}
