package types

// RGB is a color triple in [0,1] per channel. The teacher's feature-type
// palette used plain color.NRGBA; geometry vertex colors here stay in
// float space since they feed straight into BufferGeometry.Colors.
type RGB struct {
	R, G, B float32
}

// TerrainSettings configures the Terrain Builder (component #7).
type TerrainSettings struct {
	Enabled              bool
	VerticalExaggeration float32 // > 0
	BaseHeight           float32 // >= 0, thickness of the solid base block
	Color                *RGB    // nil => interpolate by elevation
}

// ElevationGrid is a regular W×H grid of elevation samples in meters,
// row-major with row 0 as the north edge and column 0 as the west edge.
// Built once per run by the Elevation Grid Builder and shared read-only
// across the Terrain Builder and every Layer Processor.
type ElevationGrid struct {
	Samples      []float32
	Width        int
	Height       int
	MinElevation float32 // after vertical exaggeration + base height
	MaxElevation float32
	OriginalMin  float32 // raw, pre-adjustment
	OriginalMax  float32
	Bounds       BBox
}

// At returns the sample at grid cell (col, row). No bounds checking; callers
// clamp before indexing (see elevation.SampleBilinear).
func (g *ElevationGrid) At(col, row int) float32 {
	return g.Samples[row*g.Width+col]
}

// Set writes the sample at grid cell (col, row).
func (g *ElevationGrid) Set(col, row int, v float32) {
	g.Samples[row*g.Width+col] = v
}
