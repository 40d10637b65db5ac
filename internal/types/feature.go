package types

import "github.com/paulmach/orb"

// Feature is a decoded vector-tile feature reprojected into bbox-local
// world XY (meters relative to the bbox SW corner). Coordinates are
// tile-local during decode; internal/tileclient performs the reprojection
// before a Feature reaches internal/layerproc.
type Feature struct {
	Geometry    orb.Geometry
	Properties  map[string]interface{}
	SourceLayer string
}

// FeatureCollection groups decoded features by MVT source layer name, as
// produced by the Vector Tile Client for one run.
type FeatureCollection struct {
	ByLayer map[string][]Feature
}

// NewFeatureCollection returns an empty, ready-to-use collection.
func NewFeatureCollection() FeatureCollection {
	return FeatureCollection{ByLayer: make(map[string][]Feature)}
}

// Add appends a feature under its source layer.
func (fc FeatureCollection) Add(f Feature) {
	fc.ByLayer[f.SourceLayer] = append(fc.ByLayer[f.SourceLayer], f)
}

// Layer returns the features for a given source layer, or nil.
func (fc FeatureCollection) Layer(name string) []Feature {
	return fc.ByLayer[name]
}

// Count returns the total number of features across all layers.
func (fc FeatureCollection) Count() int {
	n := 0
	for _, fs := range fc.ByLayer {
		n += len(fs)
	}
	return n
}
