// Package memguard samples process heap usage and publishes pressure
// levels so the indexing pipeline can throttle itself before the
// runtime hits its ceiling.
package memguard

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/codescope/codescope/internal/config"
)

// Level is a memory pressure level ordered by severity.
type Level int

const (
	LevelNormal Level = iota
	LevelWarning
	LevelCritical
	LevelEmergency
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	case LevelEmergency:
		return "emergency"
	default:
		return "normal"
	}
}

// Sample is one heap measurement.
type Sample struct {
	HeapUsed  uint64
	HeapTotal uint64
	Taken     time.Time
}

// Ratio returns heap-used over heap-total, or 0 when the total is
// unknown.
func (s Sample) Ratio() float64 {
	if s.HeapTotal == 0 {
		return 0
	}
	return float64(s.HeapUsed) / float64(s.HeapTotal)
}

// Sampler produces heap measurements. The default reads
// runtime.MemStats; tests inject scripted samplers.
type Sampler func() Sample

func runtimeSampler() Sample {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Sample{HeapUsed: m.HeapAlloc, HeapTotal: m.HeapSys, Taken: time.Now()}
}

// ReleaseFunc frees droppable memory (caches, pools). Registered
// funcs run on the transition into LevelEmergency, followed by an
// explicit GC request.
type ReleaseFunc func()

// DefaultCooldown bounds how often level transitions are published.
const DefaultCooldown = 30 * time.Second

// dropStreak is how many consecutive below-threshold samples are
// required before the level is lowered.
const dropStreak = 2

// Config holds the guard thresholds as heap-used ratios.
type Config struct {
	Warning       float64
	Critical      float64
	Emergency     float64
	CheckInterval time.Duration
	Cooldown      time.Duration
}

// FromConfig converts the YAML memory section, filling defaults.
func FromConfig(cfg config.MemoryConfig) Config {
	def := config.New().Memory
	c := Config{
		Warning:       cfg.Warning,
		Critical:      cfg.Critical,
		Emergency:     cfg.Emergency,
		CheckInterval: cfg.CheckInterval,
		Cooldown:      DefaultCooldown,
	}
	if c.Warning <= 0 {
		c.Warning = def.Warning
	}
	if c.Critical <= 0 {
		c.Critical = def.Critical
	}
	if c.Emergency <= 0 {
		c.Emergency = def.Emergency
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = def.CheckInterval
	}
	return c
}

// Guard periodically samples heap usage and notifies subscribers of
// pressure level transitions.
type Guard struct {
	cfg     Config
	sampler Sampler
	logger  *slog.Logger

	mu          sync.Mutex
	level       Level
	below       int // consecutive samples classifying under the current level
	lastEmit    time.Time
	subscribers []chan Level
	releases    []ReleaseFunc

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Option customizes a Guard.
type Option func(*Guard)

// WithSampler replaces the runtime sampler.
func WithSampler(s Sampler) Option {
	return func(g *Guard) { g.sampler = s }
}

// New creates a guard. It does not sample until Start or Check is
// called.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	g := &Guard{
		cfg:     cfg,
		sampler: runtimeSampler,
		logger:  logger.With("component", "memguard"),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Subscribe returns a channel that receives level transitions. Slow
// subscribers miss intermediate transitions rather than blocking the
// guard.
func (g *Guard) Subscribe() <-chan Level {
	ch := make(chan Level, 8)
	g.mu.Lock()
	g.subscribers = append(g.subscribers, ch)
	g.mu.Unlock()
	return ch
}

// OnEmergency registers a release hook.
func (g *Guard) OnEmergency(f ReleaseFunc) {
	g.mu.Lock()
	g.releases = append(g.releases, f)
	g.mu.Unlock()
}

// Level returns the current pressure level.
func (g *Guard) Level() Level {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.level
}

// Start samples on the configured interval until ctx is cancelled or
// Stop is called.
func (g *Guard) Start(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-g.stopCh:
			return
		case <-ticker.C:
			g.Check()
		}
	}
}

// Stop terminates the sampling loop.
func (g *Guard) Stop() {
	g.stopOnce.Do(func() { close(g.stopCh) })
}

// Check takes one sample, updates the level, and returns it. The
// coordinator also calls this between batches so pressure is observed
// faster than the background interval alone allows.
func (g *Guard) Check() Level {
	sample := g.sampler()
	target := g.classify(sample.Ratio())

	g.mu.Lock()
	prev := g.level
	emitted := false

	switch {
	case target > g.level:
		// Raising is immediate; pressure must not wait out a cooldown.
		g.level = target
		g.below = 0
		emitted = g.emitLocked(target, sample)
	case target < g.level:
		g.below++
		if g.below >= dropStreak && time.Since(g.lastEmit) >= g.cfg.Cooldown {
			g.level = target
			g.below = 0
			emitted = g.emitLocked(target, sample)
		}
	default:
		g.below = 0
	}
	level := g.level
	releases := g.releases
	g.mu.Unlock()

	if emitted && level == LevelEmergency && prev != LevelEmergency {
		g.release(releases)
	}
	return level
}

// classify maps a heap ratio to the highest threshold it crosses.
func (g *Guard) classify(ratio float64) Level {
	switch {
	case ratio >= g.cfg.Emergency:
		return LevelEmergency
	case ratio >= g.cfg.Critical:
		return LevelCritical
	case ratio >= g.cfg.Warning:
		return LevelWarning
	default:
		return LevelNormal
	}
}

// emitLocked publishes a transition to all subscribers. Caller holds
// g.mu.
func (g *Guard) emitLocked(level Level, sample Sample) bool {
	g.lastEmit = time.Now()
	g.logger.Info("memory pressure transition",
		"level", level.String(),
		"heap_used", sample.HeapUsed,
		"heap_total", sample.HeapTotal)
	for _, ch := range g.subscribers {
		select {
		case ch <- level:
		default:
		}
	}
	return true
}

// release runs emergency hooks and asks the runtime to collect.
func (g *Guard) release(hooks []ReleaseFunc) {
	for _, f := range hooks {
		f()
	}
	runtime.GC()
	g.logger.Warn("emergency memory release completed", "hooks", len(hooks))
}
