package layerproc

import (
	"context"
	"testing"

	"github.com/MeKo-Tech/terrain3d/internal/filter"
	"github.com/MeKo-Tech/terrain3d/internal/types"
	"github.com/paulmach/orb"
)

func squarePolygon(cx, cy, half float64) orb.Polygon {
	return orb.Polygon{{
		{cx - half, cy - half},
		{cx + half, cy - half},
		{cx + half, cy + half},
		{cx - half, cy + half},
		{cx - half, cy - half},
	}}
}

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

func TestProcess_BuildingExtrudesFlatWithFeatureHeight(t *testing.T) {
	cfg := types.LayerConfig{
		SourceLayer:            "building",
		Label:                  "Buildings",
		Enabled:                true,
		HeightScaleFactor:      1,
		AlignVerticesToTerrain: false,
		ZOffset:                0,
	}
	terrain := types.TerrainSettings{BaseHeight: 5, VerticalExaggeration: 1}
	features := []types.Feature{{
		Geometry:    squarePolygon(50, 50, 10),
		Properties:  map[string]interface{}{"height": float64(30)},
		SourceLayer: "building",
	}}

	grid := flatGrid(10)
	result, err := Process(context.Background(), cfg, features, grid, grid.Bounds, terrain, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.EmittedCount != 1 || result.SkippedCount != 0 {
		t.Fatalf("expected 1 emitted, 0 skipped, got %d/%d", result.EmittedCount, result.SkippedCount)
	}
	if len(result.Geometry.Children) != 1 {
		t.Fatalf("expected individual child for building layer, got %d", len(result.Geometry.Children))
	}

	child := result.Geometry.Children[0]
	minZ, maxZ := child.Positions[2], child.Positions[2]
	for i := 2; i < len(child.Positions); i += 3 {
		z := child.Positions[i]
		if z < minZ {
			minZ = z
		}
		if z > maxZ {
			maxZ = z
		}
	}
	if minZ != 5 {
		t.Fatalf("bottom z = %v, want 5 (terrainBaseHeight 5 + zOffset 0, see DESIGN.md)", minZ)
	}
	if maxZ != 35 {
		t.Fatalf("top z = %v, want 35 (bottom 5 + effective height 30)", maxZ)
	}
}

func TestProcess_RoadDrapesToTerrain(t *testing.T) {
	cfg := types.LayerConfig{
		SourceLayer:            "road",
		Label:                  "Roads",
		Enabled:                true,
		BufferSize:             2,
		ExtrusionDepth:         f32(0.5),
		HeightScaleFactor:      1,
		AlignVerticesToTerrain: true,
	}
	terrain := types.TerrainSettings{BaseHeight: 0, VerticalExaggeration: 1}
	grid := flatGrid(7)
	features := []types.Feature{{
		Geometry:    orb.LineString{{10, 50}, {90, 50}},
		Properties:  map[string]interface{}{},
		SourceLayer: "road",
	}}

	result, err := Process(context.Background(), cfg, features, grid, grid.Bounds, terrain, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.EmittedCount != 1 {
		t.Fatalf("expected 1 emitted road, got %d", result.EmittedCount)
	}
	// Roads are a non-building source layer: merged into a single child.
	if len(result.Geometry.Children) != 1 {
		t.Fatalf("expected merged single child for road layer, got %d", len(result.Geometry.Children))
	}
	child := result.Geometry.Children[0]
	for i := 2; i < len(child.Positions); i += 3 {
		z := child.Positions[i]
		if z != 7 && z != 7.5 {
			t.Fatalf("draped vertex z = %v, want 7 (terrain) or 7.5 (terrain+0.5)", z)
		}
	}
}

func TestProcess_FilteredFeatureIsSkipped(t *testing.T) {
	expr, err := filter.Parse([]byte(`["==","class","park"]`))
	if err != nil {
		t.Fatalf("filter.Parse() error = %v", err)
	}
	cfg := types.LayerConfig{SourceLayer: "landuse", Label: "Parks", Filter: expr, HeightScaleFactor: 1}
	terrain := types.TerrainSettings{VerticalExaggeration: 1}
	grid := flatGrid(0)
	features := []types.Feature{{
		Geometry:    squarePolygon(50, 50, 5),
		Properties:  map[string]interface{}{"class": "parking"},
		SourceLayer: "landuse",
	}}

	result, err := Process(context.Background(), cfg, features, grid, grid.Bounds, terrain, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.SkippedCount != 1 || result.EmittedCount != 0 {
		t.Fatalf("expected the non-matching feature to be filtered out, got emitted=%d skipped=%d", result.EmittedCount, result.SkippedCount)
	}
	if result.FeatureResult[0].SkipReason != "filtered out" {
		t.Fatalf("SkipReason = %q, want %q", result.FeatureResult[0].SkipReason, "filtered out")
	}
}

func TestProcess_GeometryDebugModeEmitsRawPoints(t *testing.T) {
	cfg := types.LayerConfig{SourceLayer: "water", Label: "Water", GeometryDebugMode: true, HeightScaleFactor: 1}
	terrain := types.TerrainSettings{VerticalExaggeration: 1}
	grid := flatGrid(0)
	features := []types.Feature{{
		Geometry:    squarePolygon(50, 50, 5),
		Properties:  map[string]interface{}{"natural": "water"},
		SourceLayer: "water",
	}}

	result, err := Process(context.Background(), cfg, features, grid, grid.Bounds, terrain, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.EmittedCount != 1 {
		t.Fatalf("expected 1 emitted raw geometry, got %d", result.EmittedCount)
	}
	merged := result.Geometry.Children[0]
	if len(merged.Indices) != 0 {
		t.Fatalf("debug mode geometry should carry no triangle indices, got %d", len(merged.Indices))
	}
}

func f32(v float32) *float32 { return &v }
