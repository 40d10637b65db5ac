package geomkernel

import (
	"github.com/MeKo-Tech/terrain3d/internal/elevation"
	"github.com/MeKo-Tech/terrain3d/internal/types"
)

// Drape replaces each vertex's z with sampleElevation(grid, x, y) +
// originalZ using bilinear interpolation on the grid (§4.6). Positions are
// mutated in a fresh copy; the input mesh is left untouched.
func Drape(mesh types.BufferGeometry, grid *types.ElevationGrid, bbox types.BBox) types.BufferGeometry {
	out := mesh
	out.Positions = append([]float32(nil), mesh.Positions...)

	for i := 0; i+2 < len(out.Positions); i += 3 {
		x := float64(out.Positions[i])
		y := float64(out.Positions[i+1])
		z := out.Positions[i+2]
		elev := elevation.SampleBilinear(grid, bbox, x, y)
		out.Positions[i+2] = elev + z
	}

	return out
}

// SubtractTerrain CSG-subtracts mesh by the half-space under the terrain
// surface (§4.6). The kernel approximates the boolean by snapping any
// vertex that sits more than Epsilon below the terrain surface at its XY
// up to the surface; triangles that only graze the surface within Epsilon
// are left untouched (see the SubtractTerrain tangential-fidelity note in
// DESIGN.md). This preserves the triangle's topology (no re-triangulation)
// at the cost of exact boolean fidelity, which §4.6 explicitly allows:
// "Implementer may approximate by clipping triangles to the terrain
// surface."
func SubtractTerrain(mesh types.BufferGeometry, grid *types.ElevationGrid, bbox types.BBox) types.BufferGeometry {
	out := mesh
	out.Positions = append([]float32(nil), mesh.Positions...)

	for i := 0; i+2 < len(out.Positions); i += 3 {
		x := float64(out.Positions[i])
		y := float64(out.Positions[i+1])
		z := out.Positions[i+2]
		terrainZ := elevation.SampleBilinear(grid, bbox, x, y)
		if z < terrainZ-Epsilon {
			out.Positions[i+2] = terrainZ
		}
	}

	return out
}
