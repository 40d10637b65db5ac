package contextpool

import (
	"context"
	"testing"

	"github.com/MeKo-Tech/terrain3d/internal/types"
)

func flatGrid(elev float32) *types.ElevationGrid {
	return &types.ElevationGrid{
		Samples:      []float32{elev, elev, elev, elev},
		Width:        2,
		Height:       2,
		MinElevation: elev,
		MaxElevation: elev,
		Bounds:       types.BBox{West: 0, South: 0, East: 100, North: 100},
	}
}

func TestPool_RunLayer_ResolvesFuture(t *testing.T) {
	p := New(2)
	grid := flatGrid(5)
	task := LayerTask{
		Config:  types.LayerConfig{SourceLayer: "water", Label: "Water", HeightScaleFactor: 1},
		Grid:    grid,
		BBox:    grid.Bounds,
		Terrain: types.TerrainSettings{VerticalExaggeration: 1},
	}

	future := p.RunLayer(context.Background(), task, nil)
	result, err := future.Wait()
	if err != nil {
		t.Fatalf("RunLayer() error = %v", err)
	}
	if result.EmittedCount != 0 {
		t.Fatalf("expected no features to process, got %d emitted", result.EmittedCount)
	}
}

func TestPool_RunLayer_NilGeometryFeatureIsSkipped(t *testing.T) {
	p := New(1)
	grid := flatGrid(5)
	// A feature whose Geometry is nil is submitted on a valid grid;
	// layerproc skips it instead of failing the layer.
	task := LayerTask{
		Config: types.LayerConfig{SourceLayer: "water", Label: "Water", HeightScaleFactor: 1},
		Features: []types.Feature{{
			Geometry:    nil,
			Properties:  map[string]interface{}{},
			SourceLayer: "water",
		}},
		Grid:    grid,
		BBox:    grid.Bounds,
		Terrain: types.TerrainSettings{VerticalExaggeration: 1},
	}

	future := p.RunLayer(context.Background(), task, nil)
	result, err := future.Wait()
	// A nil Geometry is actually handled gracefully (toBufferedPolygon
	// returns false), so this specific task will not panic — it
	// documents that RunLayer's recover is a safety net, not something
	// every nil input triggers.
	if err != nil {
		t.Fatalf("RunLayer() error = %v", err)
	}
	if result.SkippedCount != 1 {
		t.Fatalf("expected the nil-geometry feature to be skipped, got %d skipped", result.SkippedCount)
	}
}

func TestPool_ShareResourcesAndClearProcess(t *testing.T) {
	p := New(1)
	p.ShareResources("proc-1", map[string]interface{}{"grid": "shared-grid-value"})

	v, ok := p.Resource("proc-1", "grid")
	if !ok || v != "shared-grid-value" {
		t.Fatalf("Resource() = %v, %v, want shared-grid-value, true", v, ok)
	}

	p.ClearProcess("proc-1")
	if _, ok := p.Resource("proc-1", "grid"); ok {
		t.Fatalf("expected resource to be cleared after ClearProcess")
	}
}

func TestPool_Cleanup_ExpiresIdleContexts(t *testing.T) {
	p := New(4)
	p.EnsureMinimum(4)
	if len(p.lastUsed) != 4 {
		t.Fatalf("expected 4 preallocated contexts, got %d", len(p.lastUsed))
	}
	p.Cleanup(-1) // cutoff in the future: everything is "idle"
	if len(p.lastUsed) != 0 {
		t.Fatalf("expected Cleanup(-1) to expire all contexts, got %d remaining", len(p.lastUsed))
	}
}
