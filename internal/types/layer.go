package types

import "github.com/MeKo-Tech/terrain3d/internal/filter"

// LayerConfig is an immutable snapshot of one vector-tile layer's
// generation settings, taken at run start (§3 LayerConfig).
type LayerConfig struct {
	SourceLayer string
	Label       string
	Enabled     bool
	Color       RGB
	Filter      *filter.Expression

	BufferSize        float32
	ExtrusionDepth    *float32
	MinExtrusionDepth *float32

	HeightScaleFactor      float32
	UseAdaptiveScaleFactor bool

	ZOffset                float32
	AlignVerticesToTerrain bool
	UseCsgClipping         bool

	Order             int
	GeometryDebugMode bool
}

// EffectiveHeightScaleFactor returns HeightScaleFactor adjusted for
// terrain vertical exaggeration when UseAdaptiveScaleFactor is set, so
// building heights look natural regardless of terrain exaggeration (§3).
func (lc LayerConfig) EffectiveHeightScaleFactor(verticalExaggeration float32) float32 {
	if lc.UseAdaptiveScaleFactor && verticalExaggeration != 0 {
		return lc.HeightScaleFactor / verticalExaggeration
	}
	return lc.HeightScaleFactor
}

// EffectiveHeight computes the height to extrude a feature by, given an
// optional feature-carried height/render_height property (§3).
func (lc LayerConfig) EffectiveHeight(featureHeight float32, hasFeatureHeight bool, verticalExaggeration float32) float32 {
	if hasFeatureHeight {
		scaled := featureHeight * lc.EffectiveHeightScaleFactor(verticalExaggeration)
		min := float32(0)
		if lc.MinExtrusionDepth != nil {
			min = *lc.MinExtrusionDepth
		}
		if scaled < min {
			return min
		}
		return scaled
	}
	if lc.ExtrusionDepth != nil {
		return *lc.ExtrusionDepth
	}
	return lc.BufferSize
}
