package previewpng

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"github.com/MeKo-Tech/terrain3d/internal/types"
)

func squareGeometry(x0, y0, x1, y1 float32) types.BufferGeometry {
	return types.BufferGeometry{
		Positions: []float32{
			x0, y0, 0,
			x1, y0, 0,
			x1, y1, 0,
			x0, y1, 0,
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}

func TestRender_ProducesDecodablePNG(t *testing.T) {
	bbox := types.BBox{West: 0, South: 0, East: 0.01, North: 0.01}
	layers := []LayerStyle{
		{Label: "Buildings", Geometry: squareGeometry(10, 10, 200, 200), Color: ColorForIndex(0)},
	}

	var buf bytes.Buffer
	if err := Render(&buf, bbox, Canvas{Width: 256, Height: 256}, layers); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("failed to decode rendered PNG: %v", err)
	}
	if img.Bounds().Dx() != 256 || img.Bounds().Dy() != 256 {
		t.Fatalf("unexpected image size: %v", img.Bounds())
	}
}

func TestRender_ContainerChildrenAreRasterized(t *testing.T) {
	bbox := types.BBox{West: 0, South: 0, East: 0.01, North: 0.01}
	container := types.NewContainer(nil)
	container.Children = []types.BufferGeometry{squareGeometry(0, 0, 500, 500)}

	var buf bytes.Buffer
	layers := []LayerStyle{{Label: "Roads", Geometry: container, Color: color.NRGBA{R: 0, G: 0, B: 0, A: 255}}}
	if err := Render(&buf, bbox, Canvas{Width: 64, Height: 64}, layers); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected non-empty PNG output")
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("failed to decode rendered PNG: %v", err)
	}
	// The 500 m child square covers the canvas's south-west corner, so a
	// pixel well inside it carries the layer's black fill.
	if r, g, b, _ := img.At(8, 56).RGBA(); r != 0 || g != 0 || b != 0 {
		t.Fatalf("pixel inside the child square = (%d,%d,%d), want black", r, g, b)
	}
}
