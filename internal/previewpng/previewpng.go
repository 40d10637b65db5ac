// Package previewpng renders a cheap top-down PNG sanity check of a
// generated scene: the terrain footprint plus each layer's triangles
// projected straight down (Z dropped), one flat color per layer.
//
// Grounded on the teacher's internal/raster/raster.go (vector.Rasterizer
// driven by MoveTo/LineTo/ClosePath per polygon, image.NewUniform fill),
// adapted from "rasterize OSM polygon/line features at a tile's zoom" to
// "rasterize a BufferGeometry's triangles in bbox-local world XY".
package previewpng

import (
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/MeKo-Tech/terrain3d/internal/geo"
	"github.com/MeKo-Tech/terrain3d/internal/types"
	"golang.org/x/image/vector"
)

// Canvas sizes the output PNG in pixels. World XY (bbox-local meters) maps
// onto [0,Width)x[0,Height) with Y flipped so north is up.
type Canvas struct {
	Width, Height int
}

// LayerStyle pairs a layer's geometry with the fill color its triangles are
// drawn in.
type LayerStyle struct {
	Label    string
	Geometry types.BufferGeometry
	Color    color.NRGBA
}

// defaultPalette cycles through a handful of distinguishable colors for
// layers that don't carry an explicit Color.
var defaultPalette = []color.NRGBA{
	{R: 200, G: 80, B: 80, A: 200},
	{R: 80, G: 160, B: 200, A: 200},
	{R: 120, G: 180, B: 90, A: 200},
	{R: 210, G: 170, B: 60, A: 200},
	{R: 160, G: 100, B: 190, A: 200},
}

// ColorForIndex returns a stable default color for the i-th layer when no
// explicit LayerConfig.Color override is wanted.
func ColorForIndex(i int) color.NRGBA {
	return defaultPalette[i%len(defaultPalette)]
}

// Render fills each layer's triangles (terrain included, when it is passed
// as one of the layers) in that layer's own color, drawn in the given order
// so later layers paint over earlier ones, onto a single off-white Canvas,
// and writes the result as a PNG to w.
func Render(w io.Writer, bbox types.BBox, canvas Canvas, layers []LayerStyle) error {
	img := image.NewNRGBA(image.Rect(0, 0, canvas.Width, canvas.Height))
	fillBackground(img, color.NRGBA{R: 245, G: 245, B: 240, A: 255})

	worldW, worldH := geo.WorldSize(bbox)
	project := func(x, y float32) (float32, float32) {
		if worldW <= 0 || worldH <= 0 {
			return 0, 0
		}
		px := float32(float64(x) / worldW * float64(canvas.Width))
		py := float32(float64(canvas.Height) - float64(y)/worldH*float64(canvas.Height))
		return px, py
	}

	for _, layer := range layers {
		rasterizeGeometry(img, layer.Geometry, project, layer.Color, canvas)
	}

	return png.Encode(w, img)
}

func fillBackground(img *image.NRGBA, c color.NRGBA) {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}

// rasterizeGeometry walks a container's children (or the geometry itself,
// if it already carries triangles) and fills every triangle in its
// projected XY footprint.
func rasterizeGeometry(dst *image.NRGBA, g types.BufferGeometry, project func(x, y float32) (float32, float32), c color.NRGBA, canvas Canvas) {
	if len(g.Indices) > 0 {
		fillTriangles(dst, g, project, c, canvas)
	}
	for _, child := range g.Children {
		rasterizeGeometry(dst, child, project, c, canvas)
	}
}

func fillTriangles(dst *image.NRGBA, g types.BufferGeometry, project func(x, y float32) (float32, float32), c color.NRGBA, canvas Canvas) {
	ras := vector.NewRasterizer(canvas.Width, canvas.Height)
	src := image.NewUniform(c)

	for i := 0; i+2 < len(g.Indices); i += 3 {
		a, b, cc := g.Indices[i], g.Indices[i+1], g.Indices[i+2]
		ax, ay := project(g.Positions[a*3], g.Positions[a*3+1])
		bx, by := project(g.Positions[b*3], g.Positions[b*3+1])
		cx, cy := project(g.Positions[cc*3], g.Positions[cc*3+1])

		ras.MoveTo(ax, ay)
		ras.LineTo(bx, by)
		ras.LineTo(cx, cy)
		ras.ClosePath()
	}

	ras.Draw(dst, dst.Bounds(), src, image.Point{})
}
