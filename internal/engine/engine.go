// Package engine is the top-level wiring object that owns every stateful
// collaborator the generation pipeline needs: the Context Pool, the tile
// cache, the Orchestrator, and the live-input Debouncer.
//
// Design Notes §9 calls for replacing "ambient singletons" (a module-level
// Orchestrator/Pool/cache referenced implicitly from everywhere) with an
// explicit object: exactly what Engine is. No package-level mutable state
// backs any of this; every caller constructs and holds its own Engine.
//
// Grounded on the teacher's internal/pipeline.Generator + internal/cmd
// wiring (a constructor that loads/builds every dependency once, a
// slog.Logger threaded through via logger.With(...)), collapsed here into
// one explicit struct instead of package-level cmd variables.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/terrain3d/internal/contextpool"
	"github.com/MeKo-Tech/terrain3d/internal/orchestrator"
	"github.com/MeKo-Tech/terrain3d/internal/progress"
	"github.com/MeKo-Tech/terrain3d/internal/tilecache"
	"github.com/MeKo-Tech/terrain3d/internal/types"
)

// Config configures an Engine.
type Config struct {
	Orchestrator orchestrator.Config
	// PoolSize overrides the Context Pool's goroutine cap; <=0 uses
	// contextpool.DefaultSize().
	PoolSize int
	// Cache is an optional tile cache (nil: no tile is cached, so every
	// run not served from the config-hash memo re-fetches every tile).
	Cache  *tilecache.Cache
	Logger *slog.Logger

	// DebounceIdle/DebounceInteractive override the Debouncer's settling
	// delays (§9); zero keeps orchestrator.IdleDebounce/InteractiveDebounce.
	// Tests shrink these to keep debounce-path tests fast.
	DebounceIdle        time.Duration
	DebounceInteractive time.Duration
}

// Engine wires an Orchestrator, Context Pool, and tile cache together, and
// exposes both a synchronous Generate and a debounced live-input path for
// interactive callers (§9 Debouncing).
type Engine struct {
	pool         *contextpool.Pool
	cache        *tilecache.Cache
	orchestrator *orchestrator.Orchestrator
	debouncer    *orchestrator.Debouncer
	logger       *slog.Logger

	pending     pendingInput
	hasPending  bool
	pendingLock chan struct{} // binary semaphore guarding pending/hasPending
}

type pendingInput struct {
	bbox    types.BBox
	terrain types.TerrainSettings
	layers  []types.LayerConfig
	cb      progress.Callback
}

// New wires an Engine from cfg. A nil cfg.Logger defaults to slog.Default().
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pool := contextpool.New(cfg.PoolSize)
	orch := orchestrator.New(cfg.Orchestrator, pool, cfg.Cache)

	e := &Engine{
		pool:         pool,
		cache:        cfg.Cache,
		orchestrator: orch,
		logger:       logger,
		pendingLock:  make(chan struct{}, 1),
	}
	e.pendingLock <- struct{}{}
	e.debouncer = orchestrator.NewDebouncer(e.runPending)
	if cfg.DebounceIdle > 0 || cfg.DebounceInteractive > 0 {
		idle, interactive := cfg.DebounceIdle, cfg.DebounceInteractive
		if idle <= 0 {
			idle = orchestrator.IdleDebounce
		}
		if interactive <= 0 {
			interactive = orchestrator.InteractiveDebounce
		}
		e.debouncer.WithDelays(idle, interactive)
	}
	return e
}

// Generate runs one generation pass synchronously to completion; see
// orchestrator.Orchestrator.Generate for the full seven-step algorithm.
func (e *Engine) Generate(ctx context.Context, bbox types.BBox, terrain types.TerrainSettings, layers []types.LayerConfig, cb progress.Callback) (orchestrator.Result, error) {
	e.logger.Info("generate requested", "bbox", bbox.String(), "layers", len(layers))
	result, err := e.orchestrator.Generate(ctx, bbox, terrain, layers, cb)
	if err != nil {
		e.logger.Error("generate failed", "error", err)
		return orchestrator.Result{}, err
	}
	e.logger.Info("generate complete", "process_id", string(result.ProcessID))
	return result, nil
}

// NotifyInputChanged records the latest bbox/terrain/layers as pending and
// triggers the Debouncer (§9 Debouncing). Intended for interactive callers
// (e.g. a live-editing UI) that call this on every keystroke/slider move
// rather than invoking Generate directly; the Debouncer collapses a burst
// of calls into a single run, 1000ms after the last one settles (or 200ms
// if a run was already in flight).
func (e *Engine) NotifyInputChanged(bbox types.BBox, terrain types.TerrainSettings, layers []types.LayerConfig, cb progress.Callback) {
	<-e.pendingLock
	e.pending = pendingInput{bbox: bbox, terrain: terrain, layers: layers, cb: cb}
	e.hasPending = true
	e.pendingLock <- struct{}{}

	e.debouncer.Trigger()
}

// runPending is the Debouncer's run callback: it generates from whatever
// input was most recently recorded by NotifyInputChanged.
func (e *Engine) runPending(ctx context.Context) {
	<-e.pendingLock
	input := e.pending
	has := e.hasPending
	e.hasPending = false
	e.pendingLock <- struct{}{}

	if !has {
		return
	}

	if _, err := e.Generate(ctx, input.bbox, input.terrain, input.layers, input.cb); err != nil {
		e.logger.Warn("debounced generate ended without success", "error", err)
	}
}

// Stop cancels any pending or in-flight debounced run.
func (e *Engine) Stop() {
	e.debouncer.Stop()
}

// Pool exposes the underlying Context Pool, e.g. so a caller can Wait() for
// in-flight work to drain before process shutdown.
func (e *Engine) Pool() *contextpool.Pool { return e.pool }

// Cache exposes the underlying tile cache, or nil if none was configured.
func (e *Engine) Cache() *tilecache.Cache { return e.cache }
