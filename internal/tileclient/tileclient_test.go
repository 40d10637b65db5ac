package tileclient

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/MeKo-Tech/terrain3d/internal/geo"
	"github.com/MeKo-Tech/terrain3d/internal/types"
	"github.com/paulmach/orb"
)

func TestDecodeTerrainRGB(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	// elev = -10000 + (R*65536 + G*256 + B)*0.1
	// R=100, G=0, B=0 => elev = -10000 + 6553600*0.1 = 645360
	img.Set(0, 0, color.NRGBA{R: 100, G: 0, B: 0, A: 255})
	img.Set(1, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 255}) // -10000

	tile := decodeTerrainRGB(img)
	if tile.Width != 2 || tile.Height != 1 {
		t.Fatalf("unexpected dims: %dx%d", tile.Width, tile.Height)
	}

	want0 := -10000.0 + float64(100*65536)*0.1
	if math.Abs(float64(tile.At(0, 0))-want0) > 1e-3 {
		t.Fatalf("At(0,0) = %v, want %v", tile.At(0, 0), want0)
	}
	if math.Abs(float64(tile.At(1, 0))-(-10000)) > 1e-3 {
		t.Fatalf("At(1,0) = %v, want -10000", tile.At(1, 0))
	}
}

func TestExpandTemplate(t *testing.T) {
	tile := geo.Coord{Z: 13, X: 4317, Y: 2692}
	got := expandTemplate("https://example.test/{z}/{x}/{y}.png", tile)
	want := "https://example.test/13/4317/2692.png"
	if got != want {
		t.Fatalf("expandTemplate() = %q, want %q", got, want)
	}
}

func TestReprojectGeometry_CornersMapToTileBounds(t *testing.T) {
	bbox := types.BBox{West: 10, South: 50, East: 11, North: 51}
	tileBounds := types.BBox{West: 10.2, South: 50.2, East: 10.3, North: 50.3}
	extent := 4096

	nw := orb.Point{0, 0}
	got := reprojectGeometry(nw, bbox, tileBounds, extent)
	gotPt := got.(orb.Point)

	wantX, wantY := geo.WorldXY(bbox, tileBounds.West, tileBounds.North)
	if math.Abs(gotPt[0]-wantX) > 1e-6 || math.Abs(gotPt[1]-wantY) > 1e-6 {
		t.Fatalf("reprojectGeometry(NW corner) = %v, want (%v,%v)", gotPt, wantX, wantY)
	}
}

func TestRetryConfig_BackoffGrowsAndCapsAtMax(t *testing.T) {
	f := newFetcher(RetryConfig{
		InitialBackoffMs:  100,
		BackoffMultiplier: 2,
		MaxBackoffMs:      300,
		Jitter:            false,
	})

	if got := f.backoffDuration(0); got.Milliseconds() != 100 {
		t.Fatalf("backoffDuration(0) = %v, want 100ms", got)
	}
	if got := f.backoffDuration(1); got.Milliseconds() != 200 {
		t.Fatalf("backoffDuration(1) = %v, want 200ms", got)
	}
	if got := f.backoffDuration(5); got.Milliseconds() != 300 {
		t.Fatalf("backoffDuration(5) = %v, want capped at 300ms", got)
	}
}
