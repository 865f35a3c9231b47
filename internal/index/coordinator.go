package index

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/codescope/codescope/internal/chunk"
	"github.com/codescope/codescope/internal/config"
	"github.com/codescope/codescope/internal/embed"
	"github.com/codescope/codescope/internal/errors"
	"github.com/codescope/codescope/internal/extract"
	"github.com/codescope/codescope/internal/memguard"
	"github.com/codescope/codescope/internal/scanner"
	"github.com/codescope/codescope/internal/state"
)

// Deps carries everything a coordinator needs. All fields are required
// except Guard and Logger.
type Deps struct {
	State     *state.Store
	Vectors   VectorStore
	Graph     GraphStore
	Embedder  embed.Embedder
	Scanner   *scanner.Scanner
	Splitter  *chunk.Splitter
	Extractor *extract.Extractor
	Guard     *memguard.Guard
	Logger    *slog.Logger

	Indexing config.IndexingConfig
	Files    config.FilesConfig
	Paths    config.PathsConfig
}

// Coordinator owns indexing jobs. At most one job runs per project at
// a time; a second request for the same project is a conflict unless
// it cancels the first.
type Coordinator struct {
	deps Deps

	mu   sync.Mutex
	jobs map[string]*job
}

// Options tweaks a single run.
type Options struct {
	// ForceCancel cancels a job already running for the project
	// instead of returning a conflict.
	ForceCancel bool

	// Progress, when non-nil, receives per-file progress events. The
	// channel is never closed by the coordinator; sends are
	// non-blocking so a slow consumer only loses granularity.
	Progress chan<- Progress
}

// New creates a coordinator.
func New(deps Deps) *Coordinator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("component", "index")
	if deps.Indexing.MaxConcurrency <= 0 {
		deps.Indexing.MaxConcurrency = config.New().Indexing.MaxConcurrency
	}
	if deps.Indexing.BatchSize <= 0 {
		deps.Indexing.BatchSize = config.New().Indexing.BatchSize
	}
	return &Coordinator{deps: deps, jobs: make(map[string]*job)}
}

// Active reports the state of the project's job, or StateIdle.
func (c *Coordinator) Active(projectID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if j, ok := c.jobs[projectID]; ok {
		return j.currentState()
	}
	return StateIdle
}

// Cancel requests cancellation of the project's running job. It is a
// no-op when no job is active.
func (c *Coordinator) Cancel(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if j, ok := c.jobs[projectID]; ok {
		j.cancel()
	}
}

// IndexProject runs a full index of the project. It blocks until the
// job finishes and returns its summary.
func (c *Coordinator) IndexProject(ctx context.Context, project *state.Project, opts Options) (*Result, error) {
	j, err := c.admit(ctx, project, opts)
	if err != nil {
		return nil, err
	}
	defer c.release(project.ID)
	return j.runFull()
}

// ApplyChanges runs an incremental update from pre-computed change
// events, typically from the watcher or the incremental planner.
func (c *Coordinator) ApplyChanges(ctx context.Context, project *state.Project, changes []Change, opts Options) (*Result, error) {
	j, err := c.admit(ctx, project, opts)
	if err != nil {
		return nil, err
	}
	defer c.release(project.ID)
	return j.runChanges(changes)
}

// UpdateProject plans an incremental update by diffing the tree
// against the file-state store, then applies it.
func (c *Coordinator) UpdateProject(ctx context.Context, project *state.Project, opts Options) (*Result, error) {
	j, err := c.admit(ctx, project, opts)
	if err != nil {
		return nil, err
	}
	defer c.release(project.ID)

	j.setState(StatePlanning)
	changes, err := c.PlanIncremental(ctx, project)
	if err != nil {
		j.setState(StateFailed)
		return nil, err
	}
	return j.runChanges(changes)
}

// DeleteProject removes every trace of the project: vector
// collection, graph space, file records, and the registry row.
func (c *Coordinator) DeleteProject(ctx context.Context, project *state.Project) error {
	const op = "index.DeleteProject"

	c.mu.Lock()
	if j, ok := c.jobs[project.ID]; ok {
		j.cancel()
	}
	c.mu.Unlock()

	if err := c.deps.Vectors.DeleteCollection(ctx, project.CollectionName); err != nil {
		return errors.Wrap(errors.KindOf(err), op, err)
	}
	if err := c.deps.Graph.DropSpace(ctx, project.SpaceName); err != nil {
		return errors.Wrap(errors.KindOf(err), op, err)
	}
	if err := c.deps.State.DeleteProjectFiles(ctx, project.ID); err != nil {
		return err
	}
	return c.deps.State.RemoveProject(ctx, project.ID)
}

// admit registers a job for the project, enforcing the
// one-job-per-project rule.
func (c *Coordinator) admit(ctx context.Context, project *state.Project, opts Options) (*job, error) {
	const op = "index.admit"

	c.mu.Lock()
	if existing, ok := c.jobs[project.ID]; ok {
		if !opts.ForceCancel {
			c.mu.Unlock()
			return nil, errors.Conflict(op, "indexing already in progress for project "+project.ID)
		}
		existing.cancel()
		c.mu.Unlock()
		existing.wait()
		c.mu.Lock()
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	j := &job{
		coord:    c,
		project:  project,
		opts:     opts,
		cancelFn: cancel,
		ctx:      jobCtx,
		done:     make(chan struct{}),
		state:    StateIdle,
		logger:   c.deps.Logger.With("project_id", project.ID),
	}
	c.jobs[project.ID] = j
	c.mu.Unlock()

	// Tie the job to the caller's context as well.
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-jobCtx.Done():
		}
	}()
	return j, nil
}

func (c *Coordinator) release(projectID string) {
	c.mu.Lock()
	if j, ok := c.jobs[projectID]; ok {
		// Cancel the job context even on the happy path, or the
		// caller-context bridge goroutine outlives the job.
		j.cancelFn()
		close(j.done)
		delete(c.jobs, projectID)
	}
	c.mu.Unlock()
}

// job is one indexing run for one project.
type job struct {
	coord    *Coordinator
	project  *state.Project
	opts     Options
	ctx      context.Context
	cancelFn context.CancelFunc
	done     chan struct{}
	logger   *slog.Logger

	stateMu sync.Mutex
	state   State

	progressMu sync.Mutex
	indexed    int
	skipped    int
	failed     int
	total      int
	chunks     int
	entities   int

	fatalMu  sync.Mutex
	fatalErr error
}

func (j *job) cancel() { j.cancelFn() }
func (j *job) wait()   { <-j.done }

// abort records err as the job's fatal error and cancels the remaining
// work. Only the first call wins.
func (j *job) abort(err error) {
	j.fatalMu.Lock()
	if j.fatalErr == nil {
		j.fatalErr = err
	}
	j.fatalMu.Unlock()
	j.cancelFn()
}

func (j *job) fatal() error {
	j.fatalMu.Lock()
	defer j.fatalMu.Unlock()
	return j.fatalErr
}

func (j *job) deps() *Deps { return &j.coord.deps }

func (j *job) currentState() State {
	j.stateMu.Lock()
	defer j.stateMu.Unlock()
	return j.state
}

func (j *job) setState(s State) {
	j.stateMu.Lock()
	j.state = s
	j.stateMu.Unlock()
	j.emitProgress("")
}

// emitProgress sends a snapshot to the optional progress channel.
func (j *job) emitProgress(currentPath string) {
	if j.opts.Progress == nil {
		return
	}
	j.progressMu.Lock()
	p := Progress{
		ProjectID:   j.project.ID,
		State:       j.currentState(),
		CurrentPath: currentPath,
		Done:        j.indexed,
		Skipped:     j.skipped,
		Failed:      j.failed,
		Total:       j.total,
	}
	j.progressMu.Unlock()
	select {
	case j.opts.Progress <- p:
	default:
	}
}

func (j *job) addOutcome(outcome fileOutcome) {
	j.progressMu.Lock()
	switch outcome.status {
	case outcomeIndexed:
		j.indexed++
		j.chunks += outcome.chunks
		j.entities += outcome.entities
	case outcomeUnchanged:
		j.skipped++
	case outcomeFailed:
		j.failed++
	}
	j.progressMu.Unlock()
}

func (j *job) result(start time.Time, final State) *Result {
	j.progressMu.Lock()
	defer j.progressMu.Unlock()
	return &Result{
		ProjectID: j.project.ID,
		State:     final,
		Files:     j.indexed,
		Unchanged: j.skipped,
		Failed:    j.failed,
		Chunks:    j.chunks,
		Entities:  j.entities,
		Duration:  time.Since(start),
	}
}

// finish records the terminal state in the registry and returns the
// summary.
func (j *job) finish(start time.Time, runErr error) (*Result, error) {
	// A fatal per-file error cancels the job context itself, so it has
	// to take precedence over the cancellation check below.
	if fatal := j.fatal(); fatal != nil {
		runErr = fatal
	}
	var final State
	switch {
	case runErr == nil:
		final = StateCompleted
	case j.fatal() != nil:
		final = StateFailed
	case j.ctx.Err() != nil:
		final = StateCancelled
	default:
		final = StateFailed
	}
	j.setState(final)

	// Registry bookkeeping runs on a fresh context; the job's own may
	// already be cancelled.
	bg, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store := j.deps().State
	switch final {
	case StateCompleted:
		_ = store.SetProjectStatus(bg, j.project.ID, state.ProjectStatusCompleted)
		_ = store.TouchProject(bg, j.project.ID, time.Now().UTC())
	case StateFailed:
		_ = store.SetProjectStatus(bg, j.project.ID, state.ProjectStatusError)
	case StateCancelled:
		_ = store.SetProjectStatus(bg, j.project.ID, state.ProjectStatusPending)
	}

	if runErr != nil {
		return j.result(start, final), runErr
	}
	return j.result(start, final), nil
}
