// Package orchestrator implements the Generation Orchestrator (§4.10):
// the single public generate() entry point that hashes inputs for
// memoization, fetches DEM and MVT tiles, builds the elevation grid and
// terrain mesh, and dispatches each enabled layer to the Context Pool —
// sequentially when any layer needs terrain alignment, in parallel
// otherwise — aggregating progress into the external callback contract.
//
// Grounded on the teacher's internal/pipeline/generator.go (the overall
// staged fetch → build → process → assemble flow, nil-safe debug capture
// idiom) and internal/cmd/generate.go (context.WithCancel-based run
// cancellation), generalized from "render styled map tiles" to "generate
// a 3D scene from bbox + layer configs".
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/MeKo-Tech/terrain3d/internal/confighash"
	"github.com/MeKo-Tech/terrain3d/internal/contextpool"
	"github.com/MeKo-Tech/terrain3d/internal/elevation"
	"github.com/MeKo-Tech/terrain3d/internal/engineerr"
	"github.com/MeKo-Tech/terrain3d/internal/geo"
	"github.com/MeKo-Tech/terrain3d/internal/progress"
	"github.com/MeKo-Tech/terrain3d/internal/terrainmesh"
	"github.com/MeKo-Tech/terrain3d/internal/tileclient"
	"github.com/MeKo-Tech/terrain3d/internal/tilecache"
	"github.com/MeKo-Tech/terrain3d/internal/types"
	"github.com/google/uuid"
)

// Config configures tile sources and grid resolution for an Orchestrator.
type Config struct {
	VectorTileURLTemplate string
	RasterTileURLTemplate string
	TileSize              int
	GridWidth, GridHeight int
	Seed                  int64
	Retry                 tileclient.RetryConfig
}

// DefaultConfig returns sane defaults: a 256x256 elevation grid and the
// tileclient's default retry policy.
func DefaultConfig() Config {
	return Config{
		TileSize:   256,
		GridWidth:  elevation.DefaultGridSize,
		GridHeight: elevation.DefaultGridSize,
		Retry:      tileclient.DefaultRetryConfig(),
	}
}

// Result is generate()'s output (§4.10): the terrain mesh plus one
// BufferGeometry per enabled layer, keyed by layer Label.
type Result struct {
	TerrainGeometry types.BufferGeometry
	LayerGeometries map[string]types.BufferGeometry
	Hashes          types.ConfigHashes
	ProcessID       types.ProcessID
}

// Orchestrator runs the Generation Pipeline. Only the Orchestrator
// mutates cache/hash state (§5); the Context Pool and its layer
// processors only ever see immutable task inputs.
type Orchestrator struct {
	cfg   Config
	pool  *contextpool.Pool
	cache *tilecache.Cache

	rasterClient *tileclient.RasterClient
	vectorClient *tileclient.VectorClient

	mu         sync.Mutex
	lastHash   string
	lastResult *Result
	processID  types.ProcessID
	cancelRun  context.CancelFunc

	// fetchDEMFn/fetchMVTFn default to the Orchestrator's own real tile
	// fetchers (fetchDEM/fetchMVT below); tests override them to inject
	// canned DEM/feature data without standing up a fake HTTP server or
	// hand-encoding PNG/MVT bytes.
	fetchDEMFn func(ctx context.Context, bbox types.BBox) (map[geo.Coord]*tileclient.RasterTile, int, error)
	fetchMVTFn func(ctx context.Context, bbox types.BBox) (types.FeatureCollection, error)
}

// New constructs an Orchestrator. cache may be nil to disable the tile
// cache (every run not served from the config-hash memo re-fetches).
// pool may be nil to get a DefaultSize() pool.
func New(cfg Config, pool *contextpool.Pool, cache *tilecache.Cache) *Orchestrator {
	if pool == nil {
		pool = contextpool.New(0)
	}
	o := &Orchestrator{
		cfg:          cfg,
		pool:         pool,
		cache:        cache,
		rasterClient: tileclient.NewRasterClient(cfg.Retry),
		vectorClient: tileclient.NewVectorClient(cfg.Retry),
	}
	o.fetchDEMFn = o.fetchDEM
	o.fetchMVTFn = o.fetchMVT
	return o
}

// WithFetchers overrides the DEM/MVT fetch functions, for tests (in this
// package or callers like internal/engine) that want to inject canned tile
// data instead of hitting a real tile source. Returns o for chaining.
func (o *Orchestrator) WithFetchers(
	fetchDEM func(ctx context.Context, bbox types.BBox) (map[geo.Coord]*tileclient.RasterTile, int, error),
	fetchMVT func(ctx context.Context, bbox types.BBox) (types.FeatureCollection, error),
) *Orchestrator {
	o.fetchDEMFn = fetchDEM
	o.fetchMVTFn = fetchMVT
	return o
}

// Generate runs §4.10 steps 1-7. A call already in flight is cancelled
// first (step 2) before the new run starts; the new run does not wait for
// the cancelled one to finish tearing down. Callers driving generate
// off rapid input changes don't need their own cancellation bookkeeping —
// see Debouncer for the timing policy around when to call this.
func (o *Orchestrator) Generate(ctx context.Context, bbox types.BBox, terrain types.TerrainSettings, layers []types.LayerConfig, cb progress.Callback) (Result, error) {
	if !bbox.Valid() {
		return Result{}, engineerr.New(engineerr.KindInvalidInput, "orchestrator: bbox must have West<East and South<North")
	}

	hashes := confighash.ComputeAll(bbox, terrain, layers)
	agg := progress.NewAggregator(cb)

	o.mu.Lock()
	if hashes.FullConfigHash == o.lastHash && o.lastResult != nil {
		cached := *o.lastResult
		o.mu.Unlock()
		agg.Report(progress.StageComplete, 100, "memoized: config unchanged, no tiles fetched")
		return cached, nil
	}
	if o.cancelRun != nil {
		o.cancelRun() // step 2: cancel any in-flight run; it tears down at its own ctx.Err() checks, unawaited here
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancelRun = cancel
	processID := types.ProcessID(uuid.NewString()) // step 3
	o.processID = processID
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		if o.processID == processID {
			o.cancelRun = nil
		}
		o.mu.Unlock()
		o.pool.ClearProcess(string(processID))
	}()

	result, err := o.run(runCtx, processID, bbox, terrain, layers, hashes, agg)
	if err != nil {
		if runCtx.Err() != nil {
			agg.Report(progress.StageError, 100, "cancelled")
			return Result{}, engineerr.Wrap(engineerr.KindCancelled, "orchestrator", runCtx.Err())
		}
		agg.Report(progress.StageError, 100, err.Error())
		return Result{}, err
	}

	o.mu.Lock()
	if o.processID == processID { // not superseded by a newer run while we worked
		o.lastHash = hashes.FullConfigHash
		stored := result
		o.lastResult = &stored
	}
	o.mu.Unlock()

	agg.Report(progress.StageComplete, progress.FinalizeBandEnd, "generation complete")
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, processID types.ProcessID, bbox types.BBox, terrain types.TerrainSettings, layers []types.LayerConfig, hashes types.ConfigHashes, agg *progress.Aggregator) (Result, error) {
	agg.Report(progress.StageInitializing, 0, "starting generation")

	if err := ctx.Err(); err != nil {
		return Result{}, engineerr.Wrap(engineerr.KindCancelled, "orchestrator", err)
	}

	// Step 4: DEM fetch + grid build, 0->20%.
	demTiles, zoom, err := o.fetchDEMFn(ctx, bbox)
	if err != nil {
		return Result{}, err
	}
	agg.Report(progress.StageTerrain, 10, "DEM tiles fetched")

	buildCfg := elevation.BuildConfig{
		GridWidth:  o.cfg.GridWidth,
		GridHeight: o.cfg.GridHeight,
		TileSize:   o.cfg.TileSize,
		Zoom:       zoom,
		Seed:       o.cfg.Seed,
	}
	grid, err := elevation.BuildGrid(bbox, demTiles, buildCfg, terrain)
	if err != nil {
		return Result{}, engineerr.Wrap(engineerr.KindTerrainProcessingFailed, "terrain", err)
	}
	agg.Report(progress.StageTerrain, progress.TerrainBandEnd, "elevation grid built")

	if err := ctx.Err(); err != nil {
		return Result{}, engineerr.Wrap(engineerr.KindCancelled, "orchestrator", err)
	}

	terrainGeom := terrainmesh.Build(grid, terrain)

	// Step 5: MVT fetch, shared across every layer context.
	fc, err := o.fetchMVTFn(ctx, bbox)
	if err != nil {
		return Result{}, err
	}
	o.pool.ShareResources(string(processID), map[string]interface{}{
		"grid":     grid,
		"features": fc,
	})

	// Step 6: dispatch, sequential iff any enabled layer aligns to terrain.
	enabled := enabledLayers(layers)
	sequential := anyAlignsToTerrain(enabled)
	layerGeoms, err := o.dispatchLayers(ctx, enabled, fc, grid, bbox, terrain, sequential, agg)
	if err != nil {
		return Result{}, err
	}

	// Step 7: assemble.
	agg.Report(progress.StageFinalizing, progress.LayersBandEnd, "assembling outputs")
	return Result{
		TerrainGeometry: terrainGeom,
		LayerGeometries: layerGeoms,
		Hashes:          hashes,
		ProcessID:       processID,
	}, nil
}

func (o *Orchestrator) fetchDEM(ctx context.Context, bbox types.BBox) (map[geo.Coord]*tileclient.RasterTile, int, error) {
	tiles, zoom := geo.TilesCovering(bbox)
	out := make(map[geo.Coord]*tileclient.RasterTile, len(tiles))
	for _, coord := range tiles {
		coord.Z = uint32(zoom)
		if err := ctx.Err(); err != nil {
			return nil, zoom, engineerr.Wrap(engineerr.KindCancelled, "terrain:dem", err)
		}
		data, err := o.fetchRasterBytes(ctx, coord)
		if err != nil {
			return nil, zoom, engineerr.Wrap(engineerr.KindNetworkTimeout, "terrain:dem", err)
		}
		rt, err := tileclient.DecodeRasterTile(data, coord)
		if err != nil {
			return nil, zoom, engineerr.Wrap(engineerr.KindTerrainProcessingFailed, "terrain:dem", err)
		}
		out[coord] = rt
	}
	return out, zoom, nil
}

func (o *Orchestrator) fetchRasterBytes(ctx context.Context, coord geo.Coord) ([]byte, error) {
	fetch := func(ctx context.Context) ([]byte, error) {
		return o.rasterClient.FetchRasterBytes(ctx, o.cfg.RasterTileURLTemplate, coord)
	}
	if o.cache == nil {
		return fetch(ctx)
	}
	data, _, err := o.cache.GetOrFetch(ctx, tilecache.KindRaster, int(coord.Z), int(coord.X), int(coord.Y), fetch)
	return data, err
}

func (o *Orchestrator) fetchMVT(ctx context.Context, bbox types.BBox) (types.FeatureCollection, error) {
	tiles, zoom := geo.TilesCovering(bbox)
	merged := types.NewFeatureCollection()
	for _, coord := range tiles {
		coord.Z = uint32(zoom)
		if err := ctx.Err(); err != nil {
			return merged, engineerr.Wrap(engineerr.KindCancelled, "layers:mvt", err)
		}
		data, err := o.fetchVectorBytes(ctx, coord)
		if err != nil {
			return merged, engineerr.Wrap(engineerr.KindNetworkTimeout, "layers:mvt", err)
		}
		fc, err := tileclient.DecodeVectorTile(data, coord, bbox)
		if err != nil {
			return merged, engineerr.Wrap(engineerr.KindLayerProcessingFailed, "layers:mvt", err)
		}
		for layerName, feats := range fc.ByLayer {
			merged.ByLayer[layerName] = append(merged.ByLayer[layerName], feats...)
		}
	}
	return merged, nil
}

func (o *Orchestrator) fetchVectorBytes(ctx context.Context, coord geo.Coord) ([]byte, error) {
	fetch := func(ctx context.Context) ([]byte, error) {
		return o.vectorClient.FetchVectorBytes(ctx, o.cfg.VectorTileURLTemplate, coord)
	}
	if o.cache == nil {
		return fetch(ctx)
	}
	data, _, err := o.cache.GetOrFetch(ctx, tilecache.KindVector, int(coord.Z), int(coord.X), int(coord.Y), fetch)
	return data, err
}

// dispatchLayers submits every enabled layer to the Context Pool,
// sequentially (waiting for each future before submitting the next) when
// sequential is true, or all at once otherwise (§4.10 step 6, §8 Testable
// Property 6 "terrain-aligned forces sequential").
func (o *Orchestrator) dispatchLayers(ctx context.Context, layers []types.LayerConfig, fc types.FeatureCollection, grid *types.ElevationGrid, bbox types.BBox, terrain types.TerrainSettings, sequential bool, agg *progress.Aggregator) (map[string]types.BufferGeometry, error) {
	ordered := sortedLayers(layers)
	results := make(map[string]types.BufferGeometry, len(ordered))

	submit := func(idx int, l types.LayerConfig) *contextpool.Future {
		start, end := progress.LayerBand(idx, len(ordered))
		label := l.Label
		progressFn := func(pct int, msg string) {
			agg.Report(progress.StageLayers, progress.ScaleIntoBand(pct, start, end), fmt.Sprintf("%s: %s", label, msg))
		}
		task := contextpool.LayerTask{
			Config:   l,
			Features: fc.Layer(l.SourceLayer),
			Grid:     grid,
			BBox:     bbox,
			Terrain:  terrain,
		}
		return o.pool.RunLayer(ctx, task, progressFn)
	}

	if sequential {
		for idx, l := range ordered {
			lr, err := submit(idx, l).Wait()
			if err != nil {
				return nil, err
			}
			results[l.Label] = lr.Geometry
		}
		return results, nil
	}

	// Parallel mode: a per-layer failure abandons only that layer (§7
	// propagation policy, "other layers continue"). Only a cancellation of
	// the whole run is a hard error, since that isn't a single layer's
	// problem to swallow.
	futures := make([]*contextpool.Future, len(ordered))
	for idx, l := range ordered {
		futures[idx] = submit(idx, l)
	}
	for idx, f := range futures {
		lr, err := f.Wait()
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			_, end := progress.LayerBand(idx, len(ordered))
			agg.Report(progress.StageLayers, end, fmt.Sprintf("%s: failed, skipping: %v", ordered[idx].Label, err))
			continue
		}
		results[ordered[idx].Label] = lr.Geometry
	}
	return results, nil
}

func enabledLayers(layers []types.LayerConfig) []types.LayerConfig {
	out := make([]types.LayerConfig, 0, len(layers))
	for _, l := range layers {
		if l.Enabled {
			out = append(out, l)
		}
	}
	return out
}

func anyAlignsToTerrain(layers []types.LayerConfig) bool {
	for _, l := range layers {
		if l.AlignVerticesToTerrain {
			return true
		}
	}
	return false
}

// sortedLayers returns a copy of layers ordered by Order ascending,
// stable by Label on ties.
func sortedLayers(layers []types.LayerConfig) []types.LayerConfig {
	out := make([]types.LayerConfig, len(layers))
	copy(out, layers)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Label < out[j].Label
	})
	return out
}
