// Package terrainmesh implements the Terrain Builder (§4.7): turns an
// ElevationGrid into a single closed mesh with a top surface, perimeter
// skirt and flat bottom cap, vertex-colored by normalized elevation.
// Grounded on the quad→two-triangle split, per-vertex assembly idiom of
// other_examples' midgard-ro terrain mesh builder, adapted from a fixed
// tile-grid heightmap to this engine's elevation grid and vertex colors
// instead of lightmap UVs.
package terrainmesh

import (
	"math"

	"github.com/MeKo-Tech/terrain3d/internal/geo"
	"github.com/MeKo-Tech/terrain3d/internal/types"
)

// DefaultLowColor and DefaultHighColor are the gradient endpoints used to
// tint the terrain by normalized elevation when TerrainSettings.Color is
// unset (§4.7 step 4).
var (
	DefaultLowColor  = types.RGB{R: 0.25, G: 0.35, B: 0.20}
	DefaultHighColor = types.RGB{R: 0.85, G: 0.85, B: 0.80}
)

// Build assembles the terrain mesh from grid. Terrain always sits with its
// base at z=0 in the run's z frame (§4.7 step 2).
func Build(grid *types.ElevationGrid, terrain types.TerrainSettings) types.BufferGeometry {
	w, h := grid.Width, grid.Height
	if w < 2 || h < 2 {
		return types.BufferGeometry{}
	}

	worldW, worldH := geo.WorldSize(grid.Bounds)

	var positions, normals, colors []float32
	// topIdx[row*w+col] is the shared top-surface vertex index for that
	// grid cell, reused by the skirt to guarantee a shared seam edge.
	topIdx := make([]uint32, w*h)

	cellWorldXY := func(col, row int) (float64, float64) {
		u := float64(col) / float64(w-1)
		v := float64(row) / float64(h-1)
		x := worldW * u
		y := worldH * (1 - v) // row 0 = north = max world Y
		return x, y
	}

	colorAt := func(elev float32) types.RGB {
		if terrain.Color != nil {
			return *terrain.Color
		}
		span := grid.MaxElevation - grid.MinElevation
		t := float32(0.5)
		if span > 0 {
			t = (elev - grid.MinElevation) / span
		}
		return lerpRGB(DefaultLowColor, DefaultHighColor, t)
	}

	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			x, y := cellWorldXY(col, row)
			z := grid.At(col, row)
			c := colorAt(z)

			idx := uint32(len(positions) / 3)
			topIdx[row*w+col] = idx
			positions = append(positions, float32(x), float32(y), z)
			normals = append(normals, 0, 0, 1) // refined by smoothing pass below
			colors = append(colors, c.R, c.G, c.B)
		}
	}

	var indices []uint32
	for row := 0; row < h-1; row++ {
		for col := 0; col < w-1; col++ {
			v00 := topIdx[row*w+col]
			v10 := topIdx[row*w+col+1]
			v01 := topIdx[(row+1)*w+col]
			v11 := topIdx[(row+1)*w+col+1]
			// Consistent diagonal split along v10-v01, two triangles per quad.
			indices = append(indices, v00, v01, v10)
			indices = append(indices, v10, v01, v11)
		}
	}

	smoothNormals(positions, indices, normals)

	// Skirt + bottom cap.
	bottomIdx := make(map[uint32]uint32)
	ensureBottom := func(top uint32) uint32 {
		if b, ok := bottomIdx[top]; ok {
			return b
		}
		b := uint32(len(positions) / 3)
		positions = append(positions, positions[top*3], positions[top*3+1], 0)
		normals = append(normals, 0, 0, -1)
		colors = append(colors, colors[top*3], colors[top*3+1], colors[top*3+2])
		bottomIdx[top] = b
		return b
	}

	perimeter := buildPerimeterLoop(w, h, topIdx)
	for i := 0; i < len(perimeter); i++ {
		a := perimeter[i]
		b := perimeter[(i+1)%len(perimeter)]
		ab := ensureBottom(a)
		bb := ensureBottom(b)
		// Outward-facing side quad; winding chosen so the wall faces away
		// from the mesh interior as the perimeter loop walks clockwise in
		// XY (see buildPerimeterLoop).
		indices = append(indices, a, bb, ab)
		indices = append(indices, a, b, bb)
	}

	// Flat bottom cap: two triangles over the four grid corners (§4.7
	// step 3 — "two triangles for the bottom quadrilateral").
	nw := ensureBottom(topIdx[0])
	ne := ensureBottom(topIdx[w-1])
	sw := ensureBottom(topIdx[(h-1)*w])
	se := ensureBottom(topIdx[(h-1)*w+w-1])
	indices = append(indices, nw, se, sw)
	indices = append(indices, nw, ne, se)

	return types.BufferGeometry{
		Positions: positions,
		Normals:   normals,
		Colors:    colors,
		Indices:   indices,
	}
}

// buildPerimeterLoop returns the boundary top-vertex indices walked
// clockwise in XY (north edge west→east, east edge north→south, south
// edge east→west, west edge south→north), forming a closed ring suitable
// for skirt-quad generation.
func buildPerimeterLoop(w, h int, topIdx []uint32) []uint32 {
	var loop []uint32
	for col := 0; col < w; col++ { // north edge, west->east
		loop = append(loop, topIdx[col])
	}
	for row := 1; row < h; row++ { // east edge, north->south
		loop = append(loop, topIdx[row*w+w-1])
	}
	for col := w - 2; col >= 0; col-- { // south edge, east->west
		loop = append(loop, topIdx[(h-1)*w+col])
	}
	for row := h - 2; row > 0; row-- { // west edge, south->north
		loop = append(loop, topIdx[row*w])
	}
	return loop
}

func lerpRGB(a, b types.RGB, t float32) types.RGB {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return types.RGB{
		R: a.R + (b.R-a.R)*t,
		G: a.G + (b.G-a.G)*t,
		B: a.B + (b.B-a.B)*t,
	}
}

// smoothNormals recomputes per-vertex normals as the average of adjacent
// triangle face normals, eliminating the hard faceted look a single
// per-quad normal would give the top surface.
func smoothNormals(positions []float32, indices []uint32, normals []float32) {
	accum := make([][3]float32, len(normals)/3)
	for i := 0; i+2 < len(indices); i += 3 {
		ia, ib, ic := indices[i], indices[i+1], indices[i+2]
		n := faceNormal(positions, ia, ib, ic)
		accum[ia] = add3(accum[ia], n)
		accum[ib] = add3(accum[ib], n)
		accum[ic] = add3(accum[ic], n)
	}
	for i, n := range accum {
		nn := normalize3(n)
		if nn == ([3]float32{0, 0, 0}) {
			continue // leave the default +Z normal for isolated vertices
		}
		normals[i*3], normals[i*3+1], normals[i*3+2] = nn[0], nn[1], nn[2]
	}
}

func faceNormal(positions []float32, ia, ib, ic uint32) [3]float32 {
	ax, ay, az := positions[ia*3], positions[ia*3+1], positions[ia*3+2]
	bx, by, bz := positions[ib*3], positions[ib*3+1], positions[ib*3+2]
	cx, cy, cz := positions[ic*3], positions[ic*3+1], positions[ic*3+2]

	ux, uy, uz := bx-ax, by-ay, bz-az
	vx, vy, vz := cx-ax, cy-ay, cz-az

	nx := uy*vz - uz*vy
	ny := uz*vx - ux*vz
	nz := ux*vy - uy*vx
	return normalize3([3]float32{nx, ny, nz})
}

func add3(a, b [3]float32) [3]float32 {
	return [3]float32{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

func normalize3(v [3]float32) [3]float32 {
	l2 := v[0]*v[0] + v[1]*v[1] + v[2]*v[2]
	if l2 < 1e-12 {
		return [3]float32{0, 0, 0}
	}
	l := float32(math.Sqrt(float64(l2)))
	return [3]float32{v[0] / l, v[1] / l, v[2] / l}
}
