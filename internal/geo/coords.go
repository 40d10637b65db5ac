// Package geo implements Web Mercator tile coordinate math: lng/lat↔tile
// addressing, bbox→covering tile set, and the bbox-local world projection
// shared by the elevation grid, terrain mesh and every layer mesh.
package geo

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/terrain3d/internal/types"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// Coord is a Web Mercator tile address (z/x/y).
type Coord struct {
	Z, X, Y uint32
}

func (c Coord) String() string {
	return fmt.Sprintf("z%d_x%d_y%d", c.Z, c.X, c.Y)
}

// Tile returns the underlying maptile.Tile.
func (c Coord) Tile() maptile.Tile {
	return maptile.New(c.X, c.Y, maptile.Zoom(c.Z))
}

// Bounds returns the geographic bounding box of this tile in WGS84.
func (c Coord) Bounds() types.BBox {
	b := c.Tile().Bound()
	return types.BBox{West: b.Min.Lon(), South: b.Min.Lat(), East: b.Max.Lon(), North: b.Max.Lat()}
}

// TileXY computes the integer tile address containing (lng, lat) at zoom z,
// per §4.1: tileX = floor((lng+180)/360·2^z), tileY from the inverse
// Mercator latitude formula.
func TileXY(lng, lat float64, z int) (x, y uint32) {
	n := math.Pow(2, float64(z))
	tx := (lng + 180.0) / 360.0 * n
	latRad := lat * math.Pi / 180.0
	ty := (1.0 - math.Log(math.Tan(math.Pi/4.0+latRad/2.0))/math.Pi) / 2.0 * n

	x = clampTileCoord(tx, n)
	y = clampTileCoord(ty, n)
	return x, y
}

func clampTileCoord(v, n float64) uint32 {
	t := math.Floor(v)
	if t < 0 {
		t = 0
	}
	if t > n-1 {
		t = n - 1
	}
	return uint32(t)
}

// StartZoom is the initial zoom §4.1 halves down from when selecting a
// covering zoom for a bbox.
const StartZoom = 12

// MaxCoveringTiles is the tile-count ceiling §4.1 requires before halving
// the zoom further.
const MaxCoveringTiles = 4

// CoveringZoom picks the highest zoom, starting at StartZoom and halving,
// such that TilesCovering(bbox, zoom) contains at most MaxCoveringTiles
// tiles.
func CoveringZoom(bbox types.BBox) int {
	z := StartZoom
	for z > 0 {
		if len(tilesAt(bbox, z)) <= MaxCoveringTiles {
			return z
		}
		z /= 2
	}
	return 0
}

// TilesCovering returns the set of tiles covering bbox at the zoom chosen
// by CoveringZoom, and the zoom itself.
func TilesCovering(bbox types.BBox) (tiles []Coord, zoom int) {
	zoom = CoveringZoom(bbox)
	return tilesAt(bbox, zoom), zoom
}

// TilesCoveringAtZoom returns the set of tiles covering bbox at an
// explicit zoom, bypassing CoveringZoom's ≤4 selection. Used by callers
// (e.g. tests, higher-resolution vector fetches) that need a fixed zoom.
func TilesCoveringAtZoom(bbox types.BBox, zoom int) []Coord {
	return tilesAt(bbox, zoom)
}

func tilesAt(bbox types.BBox, z int) []Coord {
	zoom := maptile.Zoom(z)
	minTile := maptile.At(orb.Point{bbox.West, bbox.South}, zoom)
	maxTile := maptile.At(orb.Point{bbox.East, bbox.North}, zoom)

	minX, maxX := minTile.X, maxTile.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := minTile.Y, maxTile.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}

	tiles := make([]Coord, 0, int(maxX-minX+1)*int(maxY-minY+1))
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			tiles = append(tiles, Coord{Z: uint32(z), X: x, Y: y})
		}
	}
	return tiles
}

// metersPerDegree returns the approximate equirectangular scale factors at
// a bbox's center latitude, used to build a single consistent meters-
// per-degree projection for one run (§4.1: "world units are meters... must
// be consistent across terrain and layers"; implementer's choice of scale).
const earthRadiusMeters = 6378137.0

func metersPerDegree(centerLat float64) (mPerDegLng, mPerDegLat float64) {
	latRad := centerLat * math.Pi / 180.0
	mPerDegLat = earthRadiusMeters * math.Pi / 180.0
	mPerDegLng = mPerDegLat * math.Cos(latRad)
	return
}

// WorldXY projects (lng, lat) into bbox-local world meters, relative to the
// bbox's southwest corner, using an equirectangular approximation anchored
// at the bbox center latitude. This is the single projection every stage
// (elevation grid, terrain mesh, layer features) shares so that geometry
// composed from different sources lines up.
func WorldXY(bbox types.BBox, lng, lat float64) (x, y float64) {
	_, centerLat := bbox.Center()
	mLng, mLat := metersPerDegree(centerLat)
	x = (lng - bbox.West) * mLng
	y = (lat - bbox.South) * mLat
	return
}

// WorldSize returns the bbox's extent in world meters under WorldXY.
func WorldSize(bbox types.BBox) (width, height float64) {
	return WorldXY(bbox, bbox.East, bbox.North)
}

// PixelToWorld maps a pixel (px, py) within a tile's raster (tileSize ×
// tileSize, origin top-left) into bbox-local world XY (§4.1).
func PixelToWorld(bbox types.BBox, tile Coord, tileSize int, px, py float64) (x, y float64) {
	tb := tile.Bounds()
	lng := tb.West + (tb.East-tb.West)*(px/float64(tileSize))
	// Tile pixel rows run north→south (row 0 = north edge); BBox is in
	// geographic lat, so invert.
	lat := tb.North - (tb.North-tb.South)*(py/float64(tileSize))
	return WorldXY(bbox, lng, lat)
}

// LngLatFromWorldXY is the inverse of WorldXY: given bbox-local world
// meters, recover WGS84 (lng, lat). Used by the Elevation Grid Builder to
// map grid cells back onto the covering DEM tiles for sampling.
func LngLatFromWorldXY(bbox types.BBox, x, y float64) (lng, lat float64) {
	_, centerLat := bbox.Center()
	mLng, mLat := metersPerDegree(centerLat)
	lng = bbox.West + x/mLng
	lat = bbox.South + y/mLat
	return
}

// PixelInTile returns the fractional pixel coordinates of (lng, lat)
// within a tile's raster of the given size, or ok=false if the point lies
// outside the tile's bounds beyond a small tolerance.
func PixelInTile(tile Coord, tileSize int, lng, lat float64) (px, py float64, ok bool) {
	tb := tile.Bounds()
	const tol = 1e-9
	if lng < tb.West-tol || lng > tb.East+tol || lat < tb.South-tol || lat > tb.North+tol {
		return 0, 0, false
	}
	px = (lng - tb.West) / (tb.East - tb.West) * float64(tileSize)
	py = (tb.North - lat) / (tb.North - tb.South) * float64(tileSize)
	return px, py, true
}
