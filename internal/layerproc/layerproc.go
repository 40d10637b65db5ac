// Package layerproc implements the Layer Processor (§4.8): turns one
// LayerConfig plus its filtered features into a container BufferGeometry,
// tracking per-feature Filtered→Buffered→Triangulated→Extruded→(Clipped)→
// Emitted state and recording skip reasons instead of failing the layer.
// Grounded on the teacher's internal/pipeline/generator.go staged
// per-layer orchestration (nil-safe capture of intermediate state, one
// fmt.Errorf-wrapped failure per stage, structured logging), adapted from
// "render image layers to PNG" to "buffer/extrude/drape feature geometry
// to a 3D mesh".
//
// Each feature's buffered polygon is triangulated on its own; overlapping
// buffered polygons within one layer are not merged.
package layerproc

import (
	"context"
	"fmt"
	"math"

	"github.com/MeKo-Tech/terrain3d/internal/elevation"
	"github.com/MeKo-Tech/terrain3d/internal/engineerr"
	"github.com/MeKo-Tech/terrain3d/internal/geomkernel"
	"github.com/MeKo-Tech/terrain3d/internal/types"
	"github.com/paulmach/orb"
)

// Outcome is the terminal state of one feature's processing.
type Outcome string

const (
	OutcomeEmitted Outcome = "emitted"
	OutcomeSkipped Outcome = "skipped"
)

// Stage names a point in the per-feature state machine (§4.8).
type Stage string

const (
	StageFiltered     Stage = "filtered"
	StageBuffered     Stage = "buffered"
	StageTriangulated Stage = "triangulated"
	StageExtruded     Stage = "extruded"
	StageClipped      Stage = "clipped"
	StageEmitted      Stage = "emitted"
)

// FeatureResult records what happened to one input feature.
type FeatureResult struct {
	Index      int
	Outcome    Outcome
	Stage      Stage
	SkipReason string
}

// LayerResult is the output of processing one LayerConfig.
type LayerResult struct {
	Geometry      types.BufferGeometry
	FeatureResult []FeatureResult
	EmittedCount  int
	SkippedCount  int
}

// ProgressFunc reports 0..100 raw progress within this single layer; the
// Orchestrator rescales it into the run's overall 20..90% band.
type ProgressFunc func(pct int, message string)

// individualSourceLayers are source layers whose features are kept as
// individual children of the container rather than merged into one (§4.8
// step 7: "buildings stay individual, linear/area layers are merged").
// Building footprints are the one per-source-layer case the spec names
// explicitly; every other source layer merges by default.
var individualSourceLayers = map[string]bool{
	"building":  true,
	"buildings": true,
}

// Process runs the Layer Processor pipeline for one LayerConfig (§4.8).
// Per-feature failures are recorded in the result and skipped; they never
// fail the layer. A non-nil error means the whole layer aborted (context
// cancellation, or a layer-wide precondition failure).
func Process(ctx context.Context, cfg types.LayerConfig, features []types.Feature, grid *types.ElevationGrid, bbox types.BBox, terrain types.TerrainSettings, progress ProgressFunc) (LayerResult, error) {
	report := func(pct int, msg string) {
		if progress != nil {
			progress(pct, msg)
		}
	}

	result := LayerResult{}
	emittedChildren := make([]types.BufferGeometry, 0, len(features))

	total := len(features)
	for i, f := range features {
		if err := ctx.Err(); err != nil {
			return result, engineerr.Wrap(engineerr.KindCancelled, "layer:"+cfg.Label, err)
		}

		fr := FeatureResult{Index: i}

		if cfg.Filter != nil && !cfg.Filter.Evaluate(f.Properties) {
			fr.Outcome = OutcomeSkipped
			fr.Stage = StageFiltered
			fr.SkipReason = "filtered out"
			result.FeatureResult = append(result.FeatureResult, fr)
			result.SkippedCount++
			continue
		}
		fr.Stage = StageFiltered

		if cfg.GeometryDebugMode {
			child, ok := rawGeometryChild(f)
			if !ok {
				fr.Outcome = OutcomeSkipped
				fr.SkipReason = "empty geometry"
				result.SkippedCount++
			} else {
				fr.Outcome = OutcomeEmitted
				fr.Stage = StageEmitted
				emittedChildren = append(emittedChildren, child)
				result.EmittedCount++
			}
			result.FeatureResult = append(result.FeatureResult, fr)
			if total > 0 && i%16 == 0 {
				report(i*100/total, fmt.Sprintf("%s: debug geometry %d/%d", cfg.Label, i, total))
			}
			continue
		}

		child, skipReason, err := processFeature(f, cfg, grid, bbox, terrain, &fr)
		if err != nil {
			return result, engineerr.Wrap(engineerr.KindLayerProcessingFailed, "layer:"+cfg.Label, err)
		}
		if skipReason != "" {
			fr.Outcome = OutcomeSkipped
			fr.SkipReason = skipReason
			result.SkippedCount++
		} else {
			fr.Outcome = OutcomeEmitted
			fr.Stage = StageEmitted
			emittedChildren = append(emittedChildren, child)
			result.EmittedCount++
		}
		result.FeatureResult = append(result.FeatureResult, fr)

		if total > 0 && i%16 == 0 {
			report(i*100/total, fmt.Sprintf("%s: processed %d/%d", cfg.Label, i, total))
		}
	}

	result.Geometry = assembleContainer(cfg, emittedChildren)
	report(100, fmt.Sprintf("%s: done (%d emitted, %d skipped)", cfg.Label, result.EmittedCount, result.SkippedCount))
	return result, nil
}

// processFeature runs one feature through buffer → height → extrude/drape
// → optional CSG clip (§4.8 steps 2-6). A non-empty skipReason means the
// feature produced no geometry; it is never treated as a layer failure.
func processFeature(f types.Feature, cfg types.LayerConfig, grid *types.ElevationGrid, bbox types.BBox, terrain types.TerrainSettings, fr *FeatureResult) (types.BufferGeometry, string, error) {
	polygon, ok := toBufferedPolygon(f.Geometry, cfg.BufferSize)
	if !ok {
		return types.BufferGeometry{}, "empty or degenerate geometry", nil
	}
	fr.Stage = StageBuffered

	featureHeight, hasHeight := featureHeightProperty(f.Properties)
	effectiveHeight := cfg.EffectiveHeight(featureHeight, hasHeight, terrain.VerticalExaggeration)

	var mesh types.BufferGeometry
	if cfg.AlignVerticesToTerrain {
		mesh = drapedExtrude(polygon, grid, bbox, effectiveHeight)
		for i := 2; i < len(mesh.Positions); i += 3 {
			mesh.Positions[i] += cfg.ZOffset
		}
	} else {
		bottomZ := terrain.BaseHeight + cfg.ZOffset
		topZ := bottomZ + effectiveHeight
		mesh = geomkernel.Extrude(polygon, bottomZ, topZ)
	}
	if mesh.VertexCount() == 0 {
		return types.BufferGeometry{}, "triangulation produced no geometry", nil
	}
	fr.Stage = StageTriangulated
	fr.Stage = StageExtruded

	if cfg.UseCsgClipping {
		mesh = geomkernel.SubtractTerrain(mesh, grid, bbox)
		fr.Stage = StageClipped
	}

	mesh.UserData = cloneProperties(f.Properties)
	return mesh, "", nil
}

// toBufferedPolygon normalizes a feature's geometry to a single polygon,
// buffering linestrings to a ribbon and offsetting a polygon's outer ring
// outward by bufferSize (§4.8 step 2). A polygon keeps its holes when
// bufferSize is 0 and loses them when its outer ring is offset; multi-part
// geometries yield their first usable part. Returns false when the
// geometry is empty, unsupported (points included), or collapses to a
// degenerate ring.
func toBufferedPolygon(g orb.Geometry, bufferSize float32) (orb.Polygon, bool) {
	if g == nil {
		return nil, false
	}

	switch geom := g.(type) {
	case orb.Polygon:
		if len(geom) == 0 || len(geom[0]) < 4 {
			return nil, false
		}
		if bufferSize <= 0 {
			return geom, true
		}
		outer := geomkernel.PolygonBuffer(geom[0], float64(bufferSize))
		if len(outer) < 4 {
			return nil, false
		}
		return orb.Polygon{outer}, true

	case orb.MultiPolygon:
		for _, p := range geom {
			if poly, ok := toBufferedPolygon(p, bufferSize); ok {
				return poly, true // first non-degenerate part; later parts are dropped
			}
		}
		return nil, false

	case orb.LineString:
		if len(geom) < 2 {
			return nil, false
		}
		radius := float64(bufferSize)
		if radius <= 0 {
			radius = 0.5 // a zero-width ribbon has no area; floor it
		}
		ring := geomkernel.LinestringBuffer(geom, radius)
		if len(ring) < 4 {
			return nil, false
		}
		return orb.Polygon{ring}, true

	case orb.MultiLineString:
		for _, ls := range geom {
			if poly, ok := toBufferedPolygon(ls, bufferSize); ok {
				return poly, true
			}
		}
		return nil, false

	default:
		return nil, false
	}
}

// drapedExtrude builds a slab whose bottom follows the terrain surface and
// whose top is the bottom plus height at every vertex (§4.8 step 4),
// reusing the Geometry Kernel's triangulation and the Extrude side-wall
// idiom rather than a constant bottomZ/topZ.
func drapedExtrude(polygon orb.Polygon, grid *types.ElevationGrid, bbox types.BBox, height float32) types.BufferGeometry {
	if len(polygon) == 0 {
		return types.BufferGeometry{}
	}
	outer := polygon[0]
	var holes []orb.Ring
	if len(polygon) > 1 {
		holes = polygon[1:]
	}

	verts2D, capIndices := geomkernel.TriangulatePolygon(outer, holes)
	if len(verts2D) == 0 {
		return types.BufferGeometry{}
	}

	bottomZ := make([]float32, len(verts2D))
	for i, p := range verts2D {
		bottomZ[i] = elevation.SampleBilinear(grid, bbox, p[0], p[1])
	}

	var positions, normals []float32
	var indices []uint32

	bottomBase := uint32(0)
	for i, p := range verts2D {
		positions = append(positions, float32(p[0]), float32(p[1]), bottomZ[i])
		normals = append(normals, 0, 0, -1)
	}
	for i := 0; i+2 < len(capIndices); i += 3 {
		a, b, c := capIndices[i], capIndices[i+1], capIndices[i+2]
		indices = append(indices, bottomBase+a, bottomBase+c, bottomBase+b)
	}

	topBase := uint32(len(verts2D))
	for i, p := range verts2D {
		positions = append(positions, float32(p[0]), float32(p[1]), bottomZ[i]+height)
		normals = append(normals, 0, 0, 1)
	}
	for _, idx := range capIndices {
		indices = append(indices, topBase+idx)
	}

	rings := append([]orb.Ring{outer}, holes...)
	for _, ring := range rings {
		pts := openRing(ring)
		n := len(pts)
		for i := 0; i < n; i++ {
			j := (i + 1) % n
			p0, p1 := pts[i], pts[j]
			z0 := elevation.SampleBilinear(grid, bbox, p0[0], p0[1])
			z1 := elevation.SampleBilinear(grid, bbox, p1[0], p1[1])

			dx, dy := p1[0]-p0[0], p1[1]-p0[1]
			length := dx*dx + dy*dy
			nx, ny := dy, -dx
			if length > 0 {
				inv := 1 / math.Sqrt(length)
				nx, ny = dy*inv, -dx*inv
			}

			base := uint32(len(positions) / 3)
			positions = append(positions,
				float32(p0[0]), float32(p0[1]), z0,
				float32(p1[0]), float32(p1[1]), z1,
				float32(p1[0]), float32(p1[1]), z1+height,
				float32(p0[0]), float32(p0[1]), z0+height,
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

	return types.BufferGeometry{Positions: positions, Normals: normals, Indices: indices}
}

func openRing(ring orb.Ring) []orb.Point {
	if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
		return ring[:len(ring)-1]
	}
	return ring
}

func featureHeightProperty(props map[string]interface{}) (float32, bool) {
	for _, key := range []string{"height", "render_height"} {
		if v, ok := props[key]; ok {
			if f, ok := toFloat32(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func toFloat32(v interface{}) (float32, bool) {
	switch n := v.(type) {
	case float64:
		return float32(n), true
	case float32:
		return n, true
	case int:
		return float32(n), true
	case int64:
		return float32(n), true
	default:
		return 0, false
	}
}

func cloneProperties(props map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

// rawGeometryChild builds a points-only child geometry from a feature's
// untouched coordinates, for geometryDebugMode (§3: "skip buffering/
// extrusion, emit raw feature geometry").
func rawGeometryChild(f types.Feature) (types.BufferGeometry, bool) {
	var positions []float32
	orb.Transform(f.Geometry, func(p orb.Point) orb.Point {
		positions = append(positions, float32(p[0]), float32(p[1]), 0)
		return p
	})
	if len(positions) == 0 {
		return types.BufferGeometry{}, false
	}
	return types.BufferGeometry{Positions: positions, UserData: cloneProperties(f.Properties)}, true
}

// assembleContainer applies the per-source-layer merge policy (§4.8 step
// 7): individualSourceLayers keep one child per feature; everything else
// is merged into a single child so hover/inspection on a merged layer
// reports per-feature properties via the "features" userData slice.
func assembleContainer(cfg types.LayerConfig, children []types.BufferGeometry) types.BufferGeometry {
	container := types.NewContainer(map[string]interface{}{
		"sourceLayer": cfg.SourceLayer,
		"label":       cfg.Label,
	})

	if len(children) == 0 {
		return container
	}

	if individualSourceLayers[cfg.SourceLayer] {
		container.Children = children
		return container
	}

	merged := mergeChildren(children)
	container.Children = []types.BufferGeometry{merged}
	return container
}

// mergeChildren concatenates several geometries into one, offsetting
// index buffers by the running vertex count, and collects per-feature
// properties under userData["features"] so downstream hover/inspection
// can still resolve the originating feature on a merged layer.
func mergeChildren(children []types.BufferGeometry) types.BufferGeometry {
	var positions, normals, colors []float32
	var indices []uint32
	features := make([]map[string]interface{}, 0, len(children))

	for _, c := range children {
		base := uint32(len(positions) / 3)
		positions = append(positions, c.Positions...)
		normals = append(normals, c.Normals...)
		colors = append(colors, c.Colors...)
		for _, idx := range c.Indices {
			indices = append(indices, base+idx)
		}
		features = append(features, c.UserData)
	}

	return types.BufferGeometry{
		Positions: positions,
		Normals:   normals,
		Colors:    colors,
		Indices:   indices,
		UserData:  map[string]interface{}{"features": features},
	}
}
