package types

import "testing"

func f32(v float32) *float32 { return &v }

func TestLayerConfigEffectiveHeight(t *testing.T) {
	lc := LayerConfig{
		HeightScaleFactor:      1,
		UseAdaptiveScaleFactor: true,
		MinExtrusionDepth:      f32(2),
	}

	// feature-carried height, scaled and exaggeration-adjusted
	got := lc.EffectiveHeight(10, true, 2)
	if got != 5 {
		t.Fatalf("EffectiveHeight() = %v, want 5", got)
	}

	// below the configured minimum
	got = lc.EffectiveHeight(1, true, 2)
	if got != 2 {
		t.Fatalf("EffectiveHeight() = %v, want min 2", got)
	}

	// no feature height: falls back to extrusionDepth
	lc2 := LayerConfig{ExtrusionDepth: f32(7), BufferSize: 3}
	if got := lc2.EffectiveHeight(0, false, 1); got != 7 {
		t.Fatalf("EffectiveHeight() = %v, want 7", got)
	}

	// no extrusionDepth either: falls back to bufferSize
	lc3 := LayerConfig{BufferSize: 3}
	if got := lc3.EffectiveHeight(0, false, 1); got != 3 {
		t.Fatalf("EffectiveHeight() = %v, want 3", got)
	}
}

func TestLayerConfigAdaptiveScaleFactor(t *testing.T) {
	lc := LayerConfig{HeightScaleFactor: 4, UseAdaptiveScaleFactor: true}
	if got := lc.EffectiveHeightScaleFactor(2); got != 2 {
		t.Fatalf("EffectiveHeightScaleFactor() = %v, want 2", got)
	}

	lc2 := LayerConfig{HeightScaleFactor: 4, UseAdaptiveScaleFactor: false}
	if got := lc2.EffectiveHeightScaleFactor(2); got != 4 {
		t.Fatalf("EffectiveHeightScaleFactor() = %v, want 4 (non-adaptive)", got)
	}
}
