// Package confighash implements the Config Hashing component (§4.11):
// stable, non-cryptographic FNV-1a fingerprints of a run's BBox,
// TerrainSettings, and LayerConfigs, used by the Orchestrator to
// memoize unchanged runs. The tile cache does not use them; it keys
// tiles by kind and z/x/y.
package confighash

import (
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/MeKo-Tech/terrain3d/internal/types"
)

// fold combines a sequence of strings into one stable FNV-1a digest. Only
// equality of the result matters (§4.11): "Hash function is
// non-cryptographic (FNV-1a or equivalent); only equality matters."
func fold(parts ...string) string {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0}) // NUL separator: avoids "ab"+"c" colliding with "a"+"bc"
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// HashBBox rounds each coordinate to 6 decimals before hashing, so two
// bboxes that agree to 6 decimals hash identically (§8 Testable Property
// 5: "hashBbox(b) == hashBbox(b') whenever b and b' agree to 6 decimals").
func HashBBox(b types.BBox) string {
	round := func(v float64) string { return fmt.Sprintf("%.6f", v) }
	return fold(round(b.West), round(b.South), round(b.East), round(b.North))
}

// HashTerrain hashes the fields named in §4.11: enabled|exag|base|color.
func HashTerrain(t types.TerrainSettings) string {
	color := "none"
	if t.Color != nil {
		color = fmt.Sprintf("%.6f,%.6f,%.6f", t.Color.R, t.Color.G, t.Color.B)
	}
	return fold(
		fmt.Sprintf("%v", t.Enabled),
		fmt.Sprintf("%.6f", t.VerticalExaggeration),
		fmt.Sprintf("%.6f", t.BaseHeight),
		color,
	)
}

// canonicalLayer is the JSON shape hashLayer canonicalizes a LayerConfig
// to. Label is intentionally absent: §4.11 calls it a "transient/UI-only"
// field excluded from the hash (it is a display/merge key, not a
// generation input).
type canonicalLayer struct {
	SourceLayer            string           `json:"sourceLayer"`
	Enabled                bool             `json:"enabled"`
	Color                  types.RGB        `json:"color"`
	Filter                 json.RawMessage  `json:"filter,omitempty"`
	BufferSize             float32          `json:"bufferSize"`
	ExtrusionDepth         *float32         `json:"extrusionDepth,omitempty"`
	MinExtrusionDepth      *float32         `json:"minExtrusionDepth,omitempty"`
	HeightScaleFactor      float32          `json:"heightScaleFactor"`
	UseAdaptiveScaleFactor bool             `json:"useAdaptiveScaleFactor"`
	ZOffset                float32          `json:"zOffset"`
	AlignVerticesToTerrain bool             `json:"alignVerticesToTerrain"`
	UseCsgClipping         bool             `json:"useCsgClipping"`
	Order                  int              `json:"order"`
	GeometryDebugMode      bool             `json:"geometryDebugMode"`
}

// HashLayer hashes the canonicalized JSON of a LayerConfig, excluding
// label (§4.11).
func HashLayer(lc types.LayerConfig) string {
	canon := canonicalLayer{
		SourceLayer:            lc.SourceLayer,
		Enabled:                lc.Enabled,
		Color:                  lc.Color,
		BufferSize:             lc.BufferSize,
		ExtrusionDepth:         lc.ExtrusionDepth,
		MinExtrusionDepth:      lc.MinExtrusionDepth,
		HeightScaleFactor:      lc.HeightScaleFactor,
		UseAdaptiveScaleFactor: lc.UseAdaptiveScaleFactor,
		ZOffset:                lc.ZOffset,
		AlignVerticesToTerrain: lc.AlignVerticesToTerrain,
		UseCsgClipping:         lc.UseCsgClipping,
		Order:                  lc.Order,
		GeometryDebugMode:      lc.GeometryDebugMode,
	}
	if lc.Filter != nil {
		if b, err := json.Marshal(lc.Filter); err == nil {
			canon.Filter = b
		}
	}

	b, err := json.Marshal(canon)
	if err != nil {
		// canonicalLayer has no cyclic or unmarshalable fields; this
		// branch exists only to satisfy the compiler's error return.
		return fold(lc.SourceLayer)
	}
	return fold(string(b))
}

// ComputeAll computes fullConfigHash, terrainHash and layerHashes[] for
// one run (§4.11 step 1), in the order layers are given — callers that
// need order-independence should sort layers before calling this. A
// disabled layer's hash is still reported in layerHashes (so callers can
// inspect it), but it never folds into fullConfigHash: a disabled layer
// is never processed, so changing its config must not invalidate the
// memoized run (Seed Test Scenario 3).
func ComputeAll(bbox types.BBox, terrain types.TerrainSettings, layers []types.LayerConfig) types.ConfigHashes {
	terrainHash := HashTerrain(terrain)
	bboxHash := HashBBox(bbox)

	layerHashes := make([]string, len(layers))
	parts := make([]string, 0, len(layers)+2)
	parts = append(parts, bboxHash, terrainHash)
	for i, l := range layers {
		h := HashLayer(l)
		layerHashes[i] = h
		if l.Enabled {
			parts = append(parts, h)
		}
	}

	return types.ConfigHashes{
		FullConfigHash: fold(parts...),
		TerrainHash:    terrainHash,
		LayerHashes:    layerHashes,
	}
}
