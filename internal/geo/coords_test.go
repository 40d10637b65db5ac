package geo

import (
	"math"
	"testing"

	"github.com/MeKo-Tech/terrain3d/internal/types"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestTileXY_ConsistentWithMaptile(t *testing.T) {
	tests := []struct {
		lng, lat float64
		z        int
	}{
		{13.405, 52.52, 13}, // Berlin
		{-0.1276, 51.5072, 10},
		{0, 0, 5},
	}

	for _, tc := range tests {
		x, y := TileXY(tc.lng, tc.lat, tc.z)
		want := maptile.At(orb.Point{tc.lng, tc.lat}, maptile.Zoom(tc.z))
		if x != want.X || y != want.Y {
			t.Fatalf("TileXY(%v,%v,%d) = (%d,%d), want (%d,%d)", tc.lng, tc.lat, tc.z, x, y, want.X, want.Y)
		}
	}
}

func TestCoveringZoom_HalvesUntilAtMostFour(t *testing.T) {
	// A bbox a few degrees wide at z12 covers far more than 4 tiles, so the
	// zoom must halve at least once.
	bbox := types.BBox{West: 10, South: 45, East: 15, North: 50}
	zoom := CoveringZoom(bbox)
	if zoom >= StartZoom {
		t.Fatalf("expected zoom to be halved below %d, got %d", StartZoom, zoom)
	}
	tiles := TilesCoveringAtZoom(bbox, zoom)
	if len(tiles) > MaxCoveringTiles {
		t.Fatalf("CoveringZoom chose a zoom with %d tiles (> %d)", len(tiles), MaxCoveringTiles)
	}
}

func TestTilesCovering_SingleTileBBox(t *testing.T) {
	// A bbox small enough to sit within one tile at z12 should not be halved.
	bbox := types.BBox{West: 13.40, South: 52.52, East: 13.401, North: 52.521}
	tiles, zoom := TilesCovering(bbox)
	if zoom != StartZoom {
		t.Fatalf("expected zoom %d for a tiny bbox, got %d", StartZoom, zoom)
	}
	if len(tiles) == 0 {
		t.Fatalf("expected at least one covering tile")
	}
}

func TestWorldXY_OriginAtSouthwestCorner(t *testing.T) {
	bbox := types.BBox{West: 10, South: 50, East: 10.01, North: 50.01}
	x, y := WorldXY(bbox, bbox.West, bbox.South)
	if !almostEqual(x, 0, 1e-6) || !almostEqual(y, 0, 1e-6) {
		t.Fatalf("expected SW corner to map to (0,0), got (%v,%v)", x, y)
	}

	w, h := WorldSize(bbox)
	if w <= 0 || h <= 0 {
		t.Fatalf("expected positive world size, got (%v,%v)", w, h)
	}
}

func TestPixelToWorld_ReturnsNonNaN(t *testing.T) {
	bbox := types.BBox{West: 13.0, South: 52.0, East: 13.1, North: 52.1}
	tiles, zoom := TilesCovering(bbox)
	if len(tiles) == 0 {
		t.Fatalf("expected covering tiles")
	}
	tile := tiles[0]
	tile.Z = uint32(zoom)

	x, y := PixelToWorld(bbox, tile, 256, 0, 0)
	_ = x
	_ = y // only verifying it does not panic and returns non-NaN values
	if math.IsNaN(x) || math.IsNaN(y) {
		t.Fatalf("PixelToWorld produced NaN")
	}
}
