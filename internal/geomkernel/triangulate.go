package geomkernel

import (
	"math"

	"github.com/paulmach/orb"
)

// TriangulatePolygon earcut-style triangulates a polygon with optional
// holes (§4.6). Holes are first merged into the outer ring via bridge
// edges (the classic "slit" hole-elimination technique), then the
// resulting simple polygon is ear-clipped. Returns the vertex list actually
// used (outer ring plus hole rings, in merge order) and a flat triangle
// index buffer into that list. Degenerate (near-zero-area) candidate ears
// are skipped so no zero-area triangle is emitted.
func TriangulatePolygon(outer orb.Ring, holes []orb.Ring) ([]orb.Point, []uint32) {
	merged := ensureWinding(openRing(outer), true)
	if len(merged) < 3 {
		return nil, nil
	}

	for _, h := range holes {
		hole := ensureWinding(openRing(h), false)
		if len(hole) < 3 {
			continue
		}
		merged = mergeHole(merged, hole)
	}

	indices := earClip(merged)
	return merged, indices
}

// mergeHole bridges a hole into the outer point list: connects the hole's
// rightmost vertex to the nearest outer vertex with two edges, producing a
// single simple polygon with a zero-width slit.
func mergeHole(outer, hole []orb.Point) []orb.Point {
	// Rightmost point of the hole (max X, tie-break max Y).
	hi := 0
	for i := 1; i < len(hole); i++ {
		if hole[i][0] > hole[hi][0] || (hole[i][0] == hole[hi][0] && hole[i][1] > hole[hi][1]) {
			hi = i
		}
	}

	// Nearest outer vertex to bridge to.
	oi := 0
	best := math.Inf(1)
	for i, p := range outer {
		d := distSq(p, hole[hi])
		if d < best {
			best = d
			oi = i
		}
	}

	// Rotate the hole so it starts at hi, then splice:
	// outer[0..oi] + hole[hi..] + hole[..hi] + hole[hi] + outer[oi..]
	rotatedHole := make([]orb.Point, 0, len(hole)+1)
	for i := 0; i < len(hole); i++ {
		rotatedHole = append(rotatedHole, hole[(hi+i)%len(hole)])
	}
	rotatedHole = append(rotatedHole, hole[hi]) // close back to bridge start

	out := make([]orb.Point, 0, len(outer)+len(rotatedHole)+1)
	out = append(out, outer[:oi+1]...)
	out = append(out, rotatedHole...)
	out = append(out, outer[oi:]...)
	return out
}

func distSq(a, b orb.Point) float64 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	return dx*dx + dy*dy
}

// earClip triangulates a simple (possibly self-touching at slit bridges)
// CCW polygon by repeatedly clipping convex, empty "ears".
func earClip(pts []orb.Point) []uint32 {
	n := len(pts)
	if n < 3 {
		return nil
	}

	remaining := make([]int, n)
	for i := range remaining {
		remaining[i] = i
	}

	var indices []uint32
	// Safety bound: each successful clip removes one vertex; guard against
	// pathological inputs (all-collinear degenerate rings) looping forever.
	guard := n * n

	for len(remaining) > 3 && guard > 0 {
		clipped := false
		m := len(remaining)
		for k := 0; k < m; k++ {
			prev := remaining[(k-1+m)%m]
			cur := remaining[k]
			next := remaining[(k+1)%m]

			a, b, c := pts[prev], pts[cur], pts[next]
			area2 := cross(a, b, c)
			if area2 <= Epsilon*Epsilon {
				guard--
				continue // reflex or degenerate, not an ear
			}

			earOK := true
			for _, idx := range remaining {
				if idx == prev || idx == cur || idx == next {
					continue
				}
				if pointInTriangle(pts[idx], a, b, c) {
					earOK = false
					break
				}
			}
			if !earOK {
				guard--
				continue
			}

			indices = append(indices, uint32(prev), uint32(cur), uint32(next))
			remaining = append(remaining[:k], remaining[k+1:]...)
			clipped = true
			break
		}
		if !clipped {
			guard = 0 // give up cleanly rather than spin
		}
		guard--
	}

	if len(remaining) == 3 {
		a, b, c := pts[remaining[0]], pts[remaining[1]], pts[remaining[2]]
		if cross(a, b, c) > Epsilon*Epsilon {
			indices = append(indices, uint32(remaining[0]), uint32(remaining[1]), uint32(remaining[2]))
		}
	}

	return indices
}

// cross returns twice the signed area of triangle (a,b,c); positive when
// CCW.
func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func pointInTriangle(p, a, b, c orb.Point) bool {
	d1 := cross(a, b, p)
	d2 := cross(b, c, p)
	d3 := cross(c, a, p)
	hasNeg := d1 < 0 || d2 < 0 || d3 < 0
	hasPos := d1 > 0 || d2 > 0 || d3 > 0
	return !(hasNeg && hasPos)
}
