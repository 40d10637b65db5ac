package tileclient

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/terrain3d/internal/geo"
)

// RasterTile is a decoded Terrain-RGB DEM tile: per-pixel elevation in
// meters, row-major, row 0 at the top (north) edge.
type RasterTile struct {
	Elevations []float32
	Width      int
	Height     int
}

// At returns the elevation at pixel (px, py).
func (t *RasterTile) At(px, py int) float32 {
	return t.Elevations[py*t.Width+px]
}

// RasterClient fetches and decodes Terrain-RGB DEM tiles (§4.2).
type RasterClient struct {
	f *fetcher
}

// NewRasterClient constructs a client with the given retry policy.
func NewRasterClient(retry RetryConfig) *RasterClient {
	return &RasterClient{f: newFetcher(retry)}
}

// FetchRasterTile fetches and decodes the DEM tile at the given coordinate
// from a {z}/{x}/{y} URL template.
func (c *RasterClient) FetchRasterTile(ctx context.Context, urlTemplate string, tile geo.Coord) (*RasterTile, error) {
	data, err := c.FetchRasterBytes(ctx, urlTemplate, tile)
	if err != nil {
		return nil, err
	}
	return DecodeRasterTile(data, tile)
}

// FetchRasterBytes fetches the raw PNG bytes for a DEM tile without
// decoding, so callers (internal/tilecache) can memoize the bytes
// themselves before paying the decode cost again.
func (c *RasterClient) FetchRasterBytes(ctx context.Context, urlTemplate string, tile geo.Coord) ([]byte, error) {
	url := expandTemplate(urlTemplate, tile)
	data, err := c.f.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("tileclient: fetching raster tile %s: %w", tile, err)
	}
	return data, nil
}

// DecodeRasterTile decodes raw Terrain-RGB PNG bytes into a RasterTile.
func DecodeRasterTile(data []byte, tile geo.Coord) (*RasterTile, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("tileclient: decoding raster tile %s: %w", tile, err)
	}
	return decodeTerrainRGB(img), nil
}

// decodeTerrainRGB converts an RGBA image encoding elevation per the
// Terrain-RGB scheme into a RasterTile:
// elevMeters = -10000 + (R·256·256 + G·256 + B) · 0.1 (§4.2).
func decodeTerrainRGB(img image.Image) *RasterTile {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := &RasterTile{
		Elevations: make([]float32, w*h),
		Width:      w,
		Height:     h,
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// image.Image.RGBA() returns 16-bit-scaled channels; reduce to 8-bit.
			r8 := r >> 8
			g8 := g >> 8
			b8 := b >> 8
			elev := -10000.0 + (float64(r8)*256*256+float64(g8)*256+float64(b8))*0.1
			out.Elevations[y*w+x] = float32(elev)
		}
	}

	return out
}

// expandTemplate substitutes {z}/{x}/{y} placeholders in a tile URL
// template (§6 Vector Tile URL / Raster DEM URL).
func expandTemplate(tmpl string, tile geo.Coord) string {
	r := strings.NewReplacer(
		"{z}", strconv.FormatUint(uint64(tile.Z), 10),
		"{x}", strconv.FormatUint(uint64(tile.X), 10),
		"{y}", strconv.FormatUint(uint64(tile.Y), 10),
	)
	return r.Replace(tmpl)
}
