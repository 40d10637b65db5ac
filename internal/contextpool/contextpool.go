// Package contextpool implements the Context Pool (§4.9): a fixed-size
// pool of isolated compute contexts that run Layer Processor instances
// concurrently, plus a shared read-only resource registry keyed by
// (processID, resourceKey).
//
// Grounded on the teacher's internal/worker/pool.go (channel/WaitGroup
// worker pool, Config/ProgressFunc shape, one task per goroutine), but the
// bounded-concurrency scheduling itself is handed to
// github.com/sourcegraph/conc/pool — a real library doing exactly what
// the teacher's pool.go hand-rolled with channels and a sync.WaitGroup,
// plus panic-safety the teacher's version didn't have.
package contextpool

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/MeKo-Tech/terrain3d/internal/engineerr"
	"github.com/MeKo-Tech/terrain3d/internal/layerproc"
	"github.com/MeKo-Tech/terrain3d/internal/types"
	"github.com/sourcegraph/conc/pool"
)

// MaxContexts caps the pool size regardless of detected CPU count (§4.9:
// "N = min(hardwareConcurrency, 8)").
const MaxContexts = 8

// DefaultSize returns min(runtime.NumCPU(), MaxContexts), floored at 1.
func DefaultSize() int {
	n := runtime.NumCPU()
	if n > MaxContexts {
		n = MaxContexts
	}
	if n < 1 {
		n = 1
	}
	return n
}

// LayerTask bundles everything one RunLayer call needs to drive
// layerproc.Process independently of any other task in flight.
type LayerTask struct {
	Config   types.LayerConfig
	Features []types.Feature
	Grid     *types.ElevationGrid
	BBox     types.BBox
	Terrain  types.TerrainSettings
}

// Future resolves once a submitted LayerTask finishes (or its context is
// cancelled). Mirrors §4.9's "future<LayerResult>".
type Future struct {
	done   chan struct{}
	result layerproc.LayerResult
	err    error
}

func newFuture() *Future { return &Future{done: make(chan struct{})} }

// Wait blocks until the task completes and returns its outcome.
func (f *Future) Wait() (layerproc.LayerResult, error) {
	<-f.done
	return f.result, f.err
}

func (f *Future) resolve(r layerproc.LayerResult, err error) {
	f.result = r
	f.err = err
	close(f.done)
}

// Pool is the fixed-size pool of compute contexts.
//
// Go goroutines don't share mutable working memory unless a program
// explicitly wires it up, so the spec's "each context owns its own
// working memory for the Geometry Kernel" invariant holds for free here:
// internal/geomkernel is a library of pure functions over arguments, never
// package-level mutable state, so every goroutine this pool schedules is
// already isolated. What the pool still owns on purpose is (a) bounded
// concurrency (at most `size` layers processed at once) and (b) the
// shared-resource registry, since DEM/MVT tile data genuinely is shared
// read-only state across every context in a run.
type Pool struct {
	size int
	p    *pool.Pool

	mu        sync.Mutex
	resources map[string]interface{} // keyed by processID+"/"+resourceKey
	lastUsed  map[int]time.Time      // round-robin context bookkeeping
	nextCtx   int
}

// New constructs a pool with the given size, defaulting to DefaultSize()
// when size<=0.
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize()
	}
	return &Pool{
		size:      size,
		p:         pool.New().WithMaxGoroutines(size),
		resources: make(map[string]interface{}),
		lastUsed:  make(map[int]time.Time),
	}
}

// EnsureMinimum pre-allocates bookkeeping for up to k contexts (§4.9
// ensureMinimum). Actual goroutines are spun up lazily by RunLayer; this
// only reserves round-robin slots so Cleanup has something to expire.
func (p *Pool) EnsureMinimum(k int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if k > p.size {
		k = p.size
	}
	for len(p.lastUsed) < k {
		p.lastUsed[len(p.lastUsed)] = time.Now()
	}
}

// ShareResources marks a shared resource as accessible under
// (processID, key). The fromCtx/toCtx distinction in §4.9's signature
// collapses to a single registry here — see the Pool doc comment for why
// no real mutable state needs guarding per-context. No context ids are
// taken; each entry of resources is registered under processID by its key.
func (p *Pool) ShareResources(processID string, resources map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, value := range resources {
		p.resources[processID+"/"+key] = value
	}
}

// Resource looks up a previously shared value.
func (p *Pool) Resource(processID, key string) (interface{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.resources[processID+"/"+key]
	return v, ok
}

// ClearProcess drops every resource registered under processID, called
// once an Orchestrator run fully completes or is cancelled.
func (p *Pool) ClearProcess(processID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prefix := processID + "/"
	for k := range p.resources {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(p.resources, k)
		}
	}
}

// RunLayer submits one LayerConfig's processing to the pool (§4.9
// runLayer), returning a future that resolves with the LayerResult or an
// engineerr-typed error. A panic inside layerproc.Process is recovered
// here (not left to conc's re-raise-on-Wait) so the caller's own future
// always resolves, independent of whether or when anyone calls Wait on
// the underlying pool.
func (p *Pool) RunLayer(ctx context.Context, task LayerTask, progress layerproc.ProgressFunc) *Future {
	future := newFuture()
	p.markUsed()

	p.p.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				future.resolve(layerproc.LayerResult{}, engineerr.New(engineerr.KindInternalError, "layer processor panicked").WithContext(map[string]any{"recovered": r, "layer": task.Config.Label}))
			}
		}()
		result, err := layerproc.Process(ctx, task.Config, task.Features, task.Grid, task.BBox, task.Terrain, progress)
		future.resolve(result, err)
	})

	return future
}

func (p *Pool) markUsed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.lastUsed) == 0 {
		p.lastUsed[0] = time.Now()
		return
	}
	idx := p.nextCtx % len(p.lastUsed)
	p.lastUsed[idx] = time.Now()
	p.nextCtx++
}

// Cleanup terminates (forgets) contexts idle longer than idleMs (§4.9
// cleanup). Since this pool holds no per-context resources beyond the
// round-robin bookkeeping map, "terminate" means dropping the entry; the
// next RunLayer call simply re-allocates a fresh slot on demand.
func (p *Pool) Cleanup(idleMs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := time.Now().Add(-time.Duration(idleMs) * time.Millisecond)
	for idx, t := range p.lastUsed {
		if t.Before(cutoff) {
			delete(p.lastUsed, idx)
		}
	}
}

// Wait blocks until every in-flight RunLayer task has completed. Used at
// Orchestrator shutdown to drain the pool before reuse or teardown.
func (p *Pool) Wait() {
	p.p.Wait()
}
