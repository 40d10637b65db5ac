package geomkernel

import (
	"github.com/MeKo-Tech/terrain3d/internal/types"
	"github.com/paulmach/orb"
)

// Extrude sweeps a 2D polygon (with optional holes) vertically between
// bottomZ and topZ, emitting a top cap (normal +Z), bottom cap (normal
// -Z), and side quads (two triangles each, §4.6). Each cap's triangles
// share that cap's vertices; every side quad carries its own four
// vertices, so a box yields 8 cap and 16 side-wall positions.
func Extrude(polygon orb.Polygon, bottomZ, topZ float32) types.BufferGeometry {
	if len(polygon) == 0 {
		return types.BufferGeometry{}
	}

	outer := polygon[0]
	var holes []orb.Ring
	if len(polygon) > 1 {
		holes = polygon[1:]
	}

	verts2D, capIndices := TriangulatePolygon(outer, holes)
	if len(verts2D) == 0 {
		return types.BufferGeometry{}
	}

	var positions, normals []float32
	var indices []uint32

	// Top cap: CCW winding as triangulated faces +Z.
	topBase := uint32(0)
	for _, p := range verts2D {
		positions = append(positions, float32(p[0]), float32(p[1]), topZ)
		normals = append(normals, 0, 0, 1)
	}
	for _, idx := range capIndices {
		indices = append(indices, topBase+idx)
	}

	// Bottom cap: same vertex XY at bottomZ, winding reversed so the
	// triangle faces -Z.
	bottomBase := uint32(len(verts2D))
	for _, p := range verts2D {
		positions = append(positions, float32(p[0]), float32(p[1]), bottomZ)
		normals = append(normals, 0, 0, -1)
	}
	for i := 0; i+2 < len(capIndices); i += 3 {
		a, b, c := capIndices[i], capIndices[i+1], capIndices[i+2]
		indices = append(indices, bottomBase+a, bottomBase+c, bottomBase+b)
	}

	// Side walls: one quad (two triangles, own vertex pair) per boundary
	// edge, for the outer ring and each hole ring.
	rings := append([]orb.Ring{outer}, holes...)
	for _, ring := range rings {
		pts := openRing(ring)
		n := len(pts)
		if n < 2 {
			continue
		}

		for i := 0; i < n; i++ {
			j := (i + 1) % n
			p0, p1 := pts[i], pts[j]

			dx := p1[0] - p0[0]
			dy := p1[1] - p0[1]
			ux, uy := normalize(dx, dy)
			// Right-hand normal of the edge, the side the quad's winding
			// faces: outward for a CCW (outer) ring, into the cavity for a
			// CW (hole) ring.
			nx, ny := uy, -ux

			base := uint32(len(positions) / 3)
			positions = append(positions,
				float32(p0[0]), float32(p0[1]), bottomZ,
				float32(p1[0]), float32(p1[1]), bottomZ,
				float32(p1[0]), float32(p1[1]), topZ,
				float32(p0[0]), float32(p0[1]), topZ,
			)
			for k := 0; k < 4; k++ {
				normals = append(normals, float32(nx), float32(ny), 0)
			}
			indices = append(indices,
				base+0, base+1, base+2,
				base+0, base+2, base+3,
			)
		}
	}

	return types.BufferGeometry{
		Positions: positions,
		Normals:   normals,
		Indices:   indices,
	}
}
