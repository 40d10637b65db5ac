package geomkernel

import (
	"math"
	"testing"

	"github.com/MeKo-Tech/terrain3d/internal/types"
	"github.com/paulmach/orb"
)

func squareRing(cx, cy, half float64) orb.Ring {
	return orb.Ring{
		{cx - half, cy - half},
		{cx + half, cy - half},
		{cx + half, cy + half},
		{cx - half, cy + half},
		{cx - half, cy - half},
	}
}

func TestPolygonBuffer_ZeroIsIdentity(t *testing.T) {
	ring := squareRing(0, 0, 10)
	got := PolygonBuffer(ring, 0)
	if len(got) != len(ring) {
		t.Fatalf("expected identity buffer to preserve point count")
	}
}

func TestPolygonBuffer_ExpandsOutward(t *testing.T) {
	ring := squareRing(0, 0, 10)
	buffered := PolygonBuffer(ring, 2)

	// Every buffered point should be at least as far from the origin as
	// the nearest source corner (10*sqrt(2)), since we expanded outward.
	minSrcDist := 10 * math.Sqrt2
	for _, p := range buffered {
		d := math.Hypot(p[0], p[1])
		if d < minSrcDist-Epsilon {
			t.Fatalf("buffered point %v closer to origin (%v) than source corners (%v)", p, d, minSrcDist)
		}
	}
}

func TestTriangulatePolygon_SquareProducesTwoTriangles(t *testing.T) {
	ring := squareRing(0, 0, 5)
	verts, indices := TriangulatePolygon(ring, nil)
	if len(verts) != 4 {
		t.Fatalf("expected 4 verts for a simple square, got %d", len(verts))
	}
	if len(indices) != 6 {
		t.Fatalf("expected 2 triangles (6 indices) for a simple square, got %d", len(indices))
	}
	for i := 0; i+2 < len(indices); i += 3 {
		a, b, c := verts[indices[i]], verts[indices[i+1]], verts[indices[i+2]]
		area := cross(a, b, c)
		if math.Abs(area) < Epsilon*Epsilon {
			t.Fatalf("triangulation produced a zero-area triangle")
		}
	}
}

func TestTriangulatePolygon_WithHole(t *testing.T) {
	outer := squareRing(0, 0, 10)
	hole := squareRing(0, 0, 3)
	verts, indices := TriangulatePolygon(outer, []orb.Ring{hole})

	if len(verts) == 0 || len(indices) == 0 {
		t.Fatalf("expected a non-empty triangulation with a hole")
	}
	// No triangle should have its centroid inside the hole.
	holePts := openRing(hole)
	for i := 0; i+2 < len(indices); i += 3 {
		a, b, c := verts[indices[i]], verts[indices[i+1]], verts[indices[i+2]]
		cx := (a[0] + b[0] + c[0]) / 3
		cy := (a[1] + b[1] + c[1]) / 3
		if pointInConvexQuad(cx, cy, holePts) {
			t.Fatalf("triangle centroid (%v,%v) falls inside the hole", cx, cy)
		}
	}
}

func pointInConvexQuad(x, y float64, quad []orb.Point) bool {
	minX, maxX := quad[0][0], quad[0][0]
	minY, maxY := quad[0][1], quad[0][1]
	for _, p := range quad {
		if p[0] < minX {
			minX = p[0]
		}
		if p[0] > maxX {
			maxX = p[0]
		}
		if p[1] < minY {
			minY = p[1]
		}
		if p[1] > maxY {
			maxY = p[1]
		}
	}
	const shrink = 0.01 // avoid boundary flakiness
	return x > minX+shrink && x < maxX-shrink && y > minY+shrink && y < maxY-shrink
}

func TestLinestringBuffer_EndsAreFlatNotRound(t *testing.T) {
	line := orb.LineString{{0, 0}, {10, 0}}
	radius := 2.0
	ring := LinestringBuffer(line, radius)

	// A flat (butt) cap keeps every buffered point within the line's own
	// x-extent; a round cap would bulge past x=0 and x=10 by up to radius.
	for _, p := range openRing(ring) {
		if p[0] < -Epsilon || p[0] > 10+Epsilon {
			t.Fatalf("point %v falls outside the flat end caps (want x in [0,10])", p)
		}
	}

	// No extra arc segments at the ends: a straight 2-point line produces
	// exactly one rectangle, i.e. 4 distinct corners.
	pts := openRing(ring)
	if len(pts) != 4 {
		t.Fatalf("expected 4 corners for a straight 2-point line with flat caps, got %d: %v", len(pts), pts)
	}
}

func TestLinestringBuffer_InteriorJointStillRounded(t *testing.T) {
	// An L-shaped line: the interior joint at (10,0) should still be
	// rounded, even though the two open ends are flat.
	line := orb.LineString{{0, 0}, {10, 0}, {10, 10}}
	radius := 2.0
	ring := LinestringBuffer(line, radius)

	pts := openRing(ring)
	// A flat-ended buffer of a 2-segment line has 2 rectangles joined by a
	// rounded corner: more than the 6 corners a fully-mitered join would
	// produce, since the round join contributes extra arc points.
	if len(pts) <= 6 {
		t.Fatalf("expected extra arc points from a rounded interior joint, got only %d points", len(pts))
	}
}

func TestExtrude_BoxHasSixFaces(t *testing.T) {
	ring := squareRing(0, 0, 5)
	mesh := Extrude(orb.Polygon{ring}, 0, 10)

	if mesh.VertexCount() == 0 {
		t.Fatalf("expected non-empty mesh")
	}
	// 2 triangles top + 2 bottom + 4 edges * 2 triangles = 12 triangles.
	if mesh.TriangleCount() != 12 {
		t.Fatalf("TriangleCount() = %d, want 12", mesh.TriangleCount())
	}

	for i := 2; i < len(mesh.Positions); i += 3 {
		z := mesh.Positions[i]
		if z != 0 && z != 10 {
			t.Fatalf("unexpected z value %v, want 0 or 10", z)
		}
	}
}

func TestDrape_AddsElevation(t *testing.T) {
	grid := &types.ElevationGrid{
		Samples: []float32{5, 5, 5, 5},
		Width:   2, Height: 2,
	}
	bbox := types.BBox{West: 0, South: 0, East: 10, North: 10}

	mesh := types.BufferGeometry{Positions: []float32{5, 5, 2}}
	draped := Drape(mesh, grid, bbox)

	if draped.Positions[2] != 7 {
		t.Fatalf("Drape() z = %v, want 7 (5 elevation + 2 original)", draped.Positions[2])
	}
	if mesh.Positions[2] != 2 {
		t.Fatalf("Drape() mutated the input mesh")
	}
}

func TestSubtractTerrain_SnapsVerticesBelowSurface(t *testing.T) {
	grid := &types.ElevationGrid{
		Samples: []float32{10, 10, 10, 10},
		Width:   2, Height: 2,
	}
	bbox := types.BBox{West: 0, South: 0, East: 10, North: 10}

	mesh := types.BufferGeometry{Positions: []float32{
		5, 5, 0, // well below terrain (10): must be snapped
		5, 5, 10.00001, // within epsilon: left alone
	}}

	clipped := SubtractTerrain(mesh, grid, bbox)
	if clipped.Positions[2] != 10 {
		t.Fatalf("expected below-surface vertex to be snapped to 10, got %v", clipped.Positions[2])
	}
	if clipped.Positions[5] != 10.00001 {
		t.Fatalf("expected near-surface vertex to be left alone, got %v", clipped.Positions[5])
	}
}
