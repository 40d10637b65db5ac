package geomkernel

import (
	"math"

	"github.com/paulmach/orb"
)

// PolygonBuffer Minkowski-offsets a ring outward by delta (§4.6). Convex
// corners are rounded with MinArcSegments+ segments; concave corners are
// mitered, with a miter limit of 2·delta beyond which the corner is
// beveled. delta==0 is the identity.
func PolygonBuffer(ring orb.Ring, delta float64) orb.Ring {
	if delta == 0 {
		return ring
	}

	pts := ensureWinding(openRing(ring), true) // outer rings are CCW
	n := len(pts)
	if n < 3 {
		return ring
	}

	dirs := make([][2]float64, n)
	normals := make([][2]float64, n)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		dx := pts[j][0] - pts[i][0]
		dy := pts[j][1] - pts[i][1]
		ux, uy := normalize(dx, dy)
		dirs[i] = [2]float64{ux, uy}
		// Outward normal for a CCW ring: rotate direction -90° (clockwise).
		normals[i] = [2]float64{uy, -ux}
	}

	miterLimit := 2 * delta
	var out []orb.Point

	for i := 0; i < n; i++ {
		prev := (i - 1 + n) % n
		p := pts[i]

		prevN := normals[prev]
		currN := normals[i]
		prevD := dirs[prev]
		currD := dirs[i]

		cross := prevD[0]*currD[1] - prevD[1]*currD[0]

		a := offsetPoint(p, prevN, delta)
		b := offsetPoint(p, currN, delta)

		if cross > Epsilon {
			// Convex corner (CCW ring turning left outward): round with an
			// arc from prevN to currN about p.
			out = append(out, arcPoints(p, delta, prevN, currN)...)
		} else {
			// Straight or concave: try a mitered intersection point; bevel
			// if the miter would exceed the limit.
			if mp, ok := lineIntersect(a, prevD, b, currD); ok {
				mdx := mp[0] - p[0]
				mdy := mp[1] - p[1]
				if math.Hypot(mdx, mdy) <= miterLimit {
					out = append(out, mp)
					continue
				}
			}
			out = append(out, a, b)
		}
	}

	return closeRing(out)
}

// offsetPoint returns p shifted by delta along normal.
func offsetPoint(p orb.Point, normal [2]float64, delta float64) orb.Point {
	return orb.Point{p[0] + normal[0]*delta, p[1] + normal[1]*delta}
}

// arcPoints generates a rounded-corner arc around center, from the point
// offset by fromNormal to the point offset by toNormal, with at least
// MinArcSegments segments.
func arcPoints(center orb.Point, radius float64, fromNormal, toNormal [2]float64) []orb.Point {
	a0 := math.Atan2(fromNormal[1], fromNormal[0])
	a1 := math.Atan2(toNormal[1], toNormal[0])

	// Walk the shorter way around from a0 to a1.
	diff := a1 - a0
	for diff <= -math.Pi {
		diff += 2 * math.Pi
	}
	for diff > math.Pi {
		diff -= 2 * math.Pi
	}

	segments := MinArcSegments
	pts := make([]orb.Point, 0, segments+1)
	for s := 0; s <= segments; s++ {
		t := float64(s) / float64(segments)
		a := a0 + diff*t
		pts = append(pts, orb.Point{center[0] + radius*math.Cos(a), center[1] + radius*math.Sin(a)})
	}
	return pts
}

// lineIntersect computes the intersection of two lines given a point and
// direction each (both infinite lines, not segments).
func lineIntersect(p1 orb.Point, d1 [2]float64, p2 orb.Point, d2 [2]float64) (orb.Point, bool) {
	denom := d1[0]*d2[1] - d1[1]*d2[0]
	if math.Abs(denom) < Epsilon {
		return orb.Point{}, false
	}
	dx := p2[0] - p1[0]
	dy := p2[1] - p1[1]
	t := (dx*d2[1] - dy*d2[0]) / denom
	return orb.Point{p1[0] + d1[0]*t, p1[1] + d1[1]*t}, true
}

// LinestringBuffer flat-cap symmetric-buffers a line into a polygon: each
// segment becomes a rectangle, joined at interior vertices by round arcs of
// the same radius; the two open ends are left flat, perpendicular to the
// line's direction there (§4.6).
func LinestringBuffer(line orb.LineString, radius float64) orb.Ring {
	pts := []orb.Point(line)
	if len(pts) < 2 || radius <= 0 {
		return orb.Ring{}
	}

	var left, right []orb.Point

	for i := 0; i < len(pts)-1; i++ {
		dx := pts[i+1][0] - pts[i][0]
		dy := pts[i+1][1] - pts[i][1]
		ux, uy := normalize(dx, dy)
		nx, ny := -uy, ux // left normal

		left = append(left,
			orb.Point{pts[i][0] + nx*radius, pts[i][1] + ny*radius},
			orb.Point{pts[i+1][0] + nx*radius, pts[i+1][1] + ny*radius},
		)
		right = append(right,
			orb.Point{pts[i][0] - nx*radius, pts[i][1] - ny*radius},
			orb.Point{pts[i+1][0] - nx*radius, pts[i+1][1] - ny*radius},
		)

		// Round join at interior vertices (not the line's start/end).
		if i < len(pts)-2 {
			dx2 := pts[i+2][0] - pts[i+1][0]
			dy2 := pts[i+2][1] - pts[i+1][1]
			ux2, uy2 := normalize(dx2, dy2)
			nx2, ny2 := -uy2, ux2

			left = append(left, arcPoints(pts[i+1], radius, [2]float64{nx, ny}, [2]float64{nx2, ny2})...)
			right = append(right, arcPoints(pts[i+1], radius, [2]float64{-nx, -ny}, [2]float64{-nx2, -ny2})...)
		}
	}

	// Flat (butt) caps at both ends: left and right run the full length of
	// the line with no extra end points, so closing the ring draws a
	// straight edge from leftN to rightN and another from right0 back to
	// left0 — each perpendicular to its segment's direction, since left
	// and right are offset along that segment's normal by the same radius.
	poly := make([]orb.Point, 0, len(left)+len(right))
	poly = append(poly, left...)
	for i := len(right) - 1; i >= 0; i-- {
		poly = append(poly, right[i])
	}

	return closeRing(poly)
}
