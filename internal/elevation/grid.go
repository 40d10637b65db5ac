// Package elevation assembles fetched DEM tiles into a regular elevation
// grid clipped to a bbox, hole-fills missing samples, and applies vertical
// exaggeration and base-height shift (§4.4).
package elevation

import (
	"math"

	"github.com/MeKo-Tech/terrain3d/internal/engineerr"
	"github.com/MeKo-Tech/terrain3d/internal/geo"
	"github.com/MeKo-Tech/terrain3d/internal/tileclient"
	"github.com/MeKo-Tech/terrain3d/internal/types"
	"github.com/aquilax/go-perlin"
)

// DefaultGridSize is the default W×H elevation grid resolution (§4.4).
const DefaultGridSize = 256

// BuildConfig configures the grid assembly.
type BuildConfig struct {
	GridWidth  int
	GridHeight int
	TileSize   int // pixel width/height of each fetched raster tile
	Zoom       int // zoom level shared by every tile in Tiles
	Seed       int64
}

// DefaultBuildConfig returns a 256x256 grid config for the given zoom and
// tile pixel size.
func DefaultBuildConfig(zoom, tileSize int, seed int64) BuildConfig {
	return BuildConfig{
		GridWidth:  DefaultGridSize,
		GridHeight: DefaultGridSize,
		TileSize:   tileSize,
		Zoom:       zoom,
		Seed:       seed,
	}
}

// BuildGrid samples the covering raster tiles onto a regular grid via
// bilinear interpolation, fills holes from failed tiles, and applies
// TerrainSettings' vertical exaggeration and base height.
func BuildGrid(bbox types.BBox, tiles map[geo.Coord]*tileclient.RasterTile, cfg BuildConfig, terrain types.TerrainSettings) (*types.ElevationGrid, error) {
	if cfg.GridWidth <= 0 || cfg.GridHeight <= 0 {
		return nil, engineerr.New(engineerr.KindInvalidInput, "elevation: grid dimensions must be positive")
	}

	worldW, worldH := geo.WorldSize(bbox)

	raw := make([]float32, cfg.GridWidth*cfg.GridHeight)
	valid := make([]bool, len(raw))

	for row := 0; row < cfg.GridHeight; row++ {
		// Row 0 is the north edge (§3), so row maps to world Y descending
		// from worldH (north) to 0 (south).
		v := float64(row) / float64(maxInt(cfg.GridHeight-1, 1))
		worldY := worldH * (1 - v)

		for col := 0; col < cfg.GridWidth; col++ {
			u := float64(col) / float64(maxInt(cfg.GridWidth-1, 1))
			worldX := worldW * u

			lng, lat := geo.LngLatFromWorldXY(bbox, worldX, worldY)
			sample, ok := sampleAt(tiles, cfg, lng, lat)
			idx := row*cfg.GridWidth + col
			if ok {
				raw[idx] = sample
				valid[idx] = true
			}
		}
	}

	if !fillHoles(raw, valid, cfg.GridWidth, cfg.GridHeight, cfg.Seed) {
		return nil, engineerr.New(engineerr.KindTerrainProcessingFailed, "elevation: no valid DEM samples anywhere in bbox")
	}

	grid := adjust(raw, cfg.GridWidth, cfg.GridHeight, bbox, terrain)
	return grid, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// sampleAt bilinearly samples elevation at (lng, lat) from whichever
// covering tile contains it.
func sampleAt(tiles map[geo.Coord]*tileclient.RasterTile, cfg BuildConfig, lng, lat float64) (float32, bool) {
	for coord, rt := range tiles {
		coord.Z = uint32(cfg.Zoom)
		px, py, ok := geo.PixelInTile(coord, rt.Width, lng, lat)
		if !ok {
			continue
		}
		return bilinear(rt, px, py), true
	}
	return 0, false
}

func bilinear(rt *tileclient.RasterTile, px, py float64) float32 {
	x0 := int(math.Floor(px))
	y0 := int(math.Floor(py))
	x1 := x0 + 1
	y1 := y0 + 1

	x0 = clamp(x0, 0, rt.Width-1)
	x1 = clamp(x1, 0, rt.Width-1)
	y0 = clamp(y0, 0, rt.Height-1)
	y1 = clamp(y1, 0, rt.Height-1)

	fx := px - math.Floor(px)
	fy := py - math.Floor(py)

	v00 := float64(rt.At(x0, y0))
	v10 := float64(rt.At(x1, y0))
	v01 := float64(rt.At(x0, y1))
	v11 := float64(rt.At(x1, y1))

	top := v00*(1-fx) + v10*fx
	bottom := v01*(1-fx) + v11*fx
	return float32(top*(1-fy) + bottom*fy)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// fillHoles replaces missing samples with the nearest valid neighbor,
// jittered by a small amount of Perlin noise so hole-filled regions do
// not read as perfectly flat patches (§4.4: "Missing samples ... are
// filled with the nearest valid neighbor"). Returns false if no sample in
// the grid is valid.
func fillHoles(samples []float32, valid []bool, w, h int, seed int64) bool {
	anyValid := false
	for _, v := range valid {
		if v {
			anyValid = true
			break
		}
	}
	if !anyValid {
		return false
	}

	noise := perlin.NewPerlin(2, 2, 3, seed)

	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			idx := row*w + col
			if valid[idx] {
				continue
			}
			ncol, nrow, found := nearestValid(valid, w, h, col, row)
			if !found {
				continue
			}
			jitter := float32(noise.Noise2D(float64(col)*0.1, float64(row)*0.1)) * 0.5
			samples[idx] = samples[nrow*w+ncol] + jitter
			valid[idx] = true
		}
	}
	return true
}

// nearestValid performs an expanding ring search for the closest cell
// with a valid sample.
func nearestValid(valid []bool, w, h, col, row int) (int, int, bool) {
	maxR := w
	if h > maxR {
		maxR = h
	}
	for r := 1; r <= maxR; r++ {
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				if abs(dx) != r && abs(dy) != r {
					continue // only check the ring perimeter
				}
				x, y := col+dx, row+dy
				if x < 0 || x >= w || y < 0 || y >= h {
					continue
				}
				if valid[y*w+x] {
					return x, y, true
				}
			}
		}
	}
	return 0, 0, false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// adjust applies sample' = (sample - rawMin)*verticalExaggeration +
// baseHeight and records both raw and adjusted min/max (§4.4).
func adjust(raw []float32, w, h int, bbox types.BBox, terrain types.TerrainSettings) *types.ElevationGrid {
	rawMin, rawMax := raw[0], raw[0]
	for _, v := range raw {
		if v < rawMin {
			rawMin = v
		}
		if v > rawMax {
			rawMax = v
		}
	}

	exag := terrain.VerticalExaggeration
	if exag <= 0 {
		exag = 1
	}

	adjusted := make([]float32, len(raw))
	adjMin, adjMax := float32(0), float32(0)
	for i, v := range raw {
		a := (v-rawMin)*exag + terrain.BaseHeight
		adjusted[i] = a
		if i == 0 || a < adjMin {
			adjMin = a
		}
		if i == 0 || a > adjMax {
			adjMax = a
		}
	}

	return &types.ElevationGrid{
		Samples:      adjusted,
		Width:        w,
		Height:       h,
		MinElevation: adjMin,
		MaxElevation: adjMax,
		OriginalMin:  rawMin,
		OriginalMax:  rawMax,
		Bounds:       bbox,
	}
}

// SampleBilinear samples the grid at bbox-local world (x, y) using
// bilinear interpolation, clamping to the grid edges. Used by the
// Geometry Kernel's drape/subtractTerrain operations.
func SampleBilinear(grid *types.ElevationGrid, bbox types.BBox, x, y float64) float32 {
	worldW, worldH := geo.WorldSize(bbox)
	if worldW <= 0 || worldH <= 0 {
		return 0
	}

	u := x / worldW
	v := 1 - y/worldH // row 0 = north = max world Y

	fx := u * float64(grid.Width-1)
	fy := v * float64(grid.Height-1)

	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	x1 := x0 + 1
	y1 := y0 + 1

	x0 = clamp(x0, 0, grid.Width-1)
	x1 = clamp(x1, 0, grid.Width-1)
	y0 = clamp(y0, 0, grid.Height-1)
	y1 = clamp(y1, 0, grid.Height-1)

	dx := fx - math.Floor(fx)
	dy := fy - math.Floor(fy)

	v00 := float64(grid.At(x0, y0))
	v10 := float64(grid.At(x1, y0))
	v01 := float64(grid.At(x0, y1))
	v11 := float64(grid.At(x1, y1))

	top := v00*(1-dx) + v10*dx
	bottom := v01*(1-dx) + v11*dx
	return float32(top*(1-dy) + bottom*dy)
}
