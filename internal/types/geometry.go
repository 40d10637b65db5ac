package types

// BufferGeometry is the output mesh representation (§3), chosen to mirror
// the flat typed-array layout a GLB/OBJ/STL encoder downstream expects:
// Positions/Normals/Colors are packed 3 floats per vertex, Indices 3 per
// triangle. A "container" geometry carries no Positions of its own and
// instead holds Children — used when a layer emits one mesh per feature
// (buildings) or one merged mesh per source layer (roads, water).
type BufferGeometry struct {
	Positions []float32
	Indices   []uint32
	Normals   []float32
	Colors    []float32
	UserData  map[string]interface{}
	Children  []BufferGeometry
}

// IsContainer reports whether this geometry has no vertex data of its own
// and instead wraps child geometries.
func (g BufferGeometry) IsContainer() bool {
	return len(g.Positions) == 0 && g.Children != nil
}

// VertexCount returns the number of vertices (Positions triples).
func (g BufferGeometry) VertexCount() int {
	return len(g.Positions) / 3
}

// TriangleCount returns the number of triangles (Indices triples).
func (g BufferGeometry) TriangleCount() int {
	return len(g.Indices) / 3
}

// NewContainer returns an empty container geometry ready to accept children.
func NewContainer(userData map[string]interface{}) BufferGeometry {
	if userData == nil {
		userData = make(map[string]interface{})
	}
	return BufferGeometry{UserData: userData, Children: []BufferGeometry{}}
}
