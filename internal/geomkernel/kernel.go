// Package geomkernel is the pure, I/O-free computational geometry core:
// polygon/linestring buffering, earcut-style triangulation, extrusion,
// terrain draping and CSG-style terrain subtraction (§4.6). There is no
// triangulation, polygon-offset or CSG library anywhere in the retrieval
// pack (even arl-go-detour's navmesh math hand-rolls its own recast/detour
// geometry rather than importing one), so this package follows that same
// hand-rolled-computational-geometry idiom: explicit winding checks,
// epsilon constants, and index buffers built up by hand.
package geomkernel

import (
	"math"

	"github.com/paulmach/orb"
)

// Epsilon is the global tolerance for collinearity and containment tests
// (§4.6 "Numeric policy").
const Epsilon = 1e-4

// MinArcSegments is the minimum number of segments used to round a convex
// corner in polygonBuffer and an interior joint of linestringBuffer
// (§4.6); linestringBuffer's end caps are flat.
const MinArcSegments = 4

// signedArea2 returns twice the signed area of a ring (shoelace formula).
// Positive for CCW, negative for CW.
func signedArea2(pts []orb.Point) float64 {
	n := len(pts)
	if n < 3 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += pts[i][0]*pts[j][1] - pts[j][0]*pts[i][1]
	}
	return sum
}

// isCCW reports whether pts winds counter-clockwise.
func isCCW(pts []orb.Point) bool {
	return signedArea2(pts) > 0
}

// openRing strips a duplicated closing point (first == last), returning an
// "open" point list where every point is distinct.
func openRing(ring orb.Ring) []orb.Point {
	pts := []orb.Point(ring)
	if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	return pts
}

// closeRing appends the first point to the end if not already closed, the
// conventional orb.Ring representation.
func closeRing(pts []orb.Point) orb.Ring {
	if len(pts) == 0 {
		return orb.Ring{}
	}
	if pts[0] != pts[len(pts)-1] {
		out := make([]orb.Point, len(pts)+1)
		copy(out, pts)
		out[len(pts)] = pts[0]
		return orb.Ring(out)
	}
	return orb.Ring(pts)
}

// ensureWinding returns pts reordered (reversed if necessary) so its
// winding matches ccw. The kernel flips inputs that violate the CCW
// outer / CW hole convention (§4.6).
func ensureWinding(pts []orb.Point, ccw bool) []orb.Point {
	if isCCW(pts) == ccw {
		return pts
	}
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[len(pts)-1-i] = p
	}
	return out
}

func normalize(dx, dy float64) (float64, float64) {
	l := dx*dx + dy*dy
	if l < Epsilon*Epsilon {
		return 0, 0
	}
	l = math.Sqrt(l)
	return dx / l, dy / l
}
