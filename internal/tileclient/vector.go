package tileclient

import (
	"context"
	"fmt"

	"github.com/MeKo-Tech/terrain3d/internal/geo"
	"github.com/MeKo-Tech/terrain3d/internal/types"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
)

// defaultMVTExtent is the standard MVT tile-local coordinate extent used
// when a layer does not report its own (most encoders use 4096).
const defaultMVTExtent = 4096

// VectorClient fetches and decodes MVT tiles into Features reprojected
// into bbox-local world XY (§4.3).
type VectorClient struct {
	f *fetcher
}

// NewVectorClient constructs a client with the given retry policy.
func NewVectorClient(retry RetryConfig) *VectorClient {
	return &VectorClient{f: newFetcher(retry)}
}

// FetchVectorTile fetches and decodes the MVT tile at the given
// coordinate, reprojecting every feature's geometry from tile-local
// coordinates into bbox-local world XY via internal/geo.
func (c *VectorClient) FetchVectorTile(ctx context.Context, urlTemplate string, tile geo.Coord, bbox types.BBox) (types.FeatureCollection, error) {
	data, err := c.FetchVectorBytes(ctx, urlTemplate, tile)
	if err != nil {
		return types.NewFeatureCollection(), err
	}
	return DecodeVectorTile(data, tile, bbox)
}

// FetchVectorBytes fetches the raw MVT protobuf bytes for a tile without
// decoding, so callers (internal/tilecache) can memoize the bytes
// themselves before paying the decode cost again.
func (c *VectorClient) FetchVectorBytes(ctx context.Context, urlTemplate string, tile geo.Coord) ([]byte, error) {
	url := expandTemplate(urlTemplate, tile)
	data, err := c.f.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("tileclient: fetching vector tile %s: %w", tile, err)
	}
	return data, nil
}

// DecodeVectorTile decodes raw MVT bytes into Features reprojected into
// bbox-local world XY.
func DecodeVectorTile(data []byte, tile geo.Coord, bbox types.BBox) (types.FeatureCollection, error) {
	fc := types.NewFeatureCollection()

	layers, err := mvt.Unmarshal(data)
	if err != nil {
		return fc, fmt.Errorf("tileclient: decoding vector tile %s: %w", tile, err)
	}

	tileBounds := tile.Bounds()

	for layerName, layer := range layers {
		extent := int(layer.Extent)
		if extent <= 0 {
			extent = defaultMVTExtent
		}

		for _, feat := range layer.Features {
			if feat.Geometry == nil {
				continue
			}
			geom := reprojectGeometry(feat.Geometry, bbox, tileBounds, extent)
			fc.Add(types.Feature{
				Geometry:    geom,
				Properties:  feat.Properties,
				SourceLayer: layerName,
			})
		}
	}

	return fc, nil
}

// reprojectGeometry maps tile-local pixel coordinates [0, extent) onto
// bbox-local world XY meters, via the tile's geographic bounds.
func reprojectGeometry(g orb.Geometry, bbox types.BBox, tileBounds types.BBox, extent int) orb.Geometry {
	transform := func(p orb.Point) orb.Point {
		lng := tileBounds.West + (tileBounds.East-tileBounds.West)*(p[0]/float64(extent))
		lat := tileBounds.North - (tileBounds.North-tileBounds.South)*(p[1]/float64(extent))
		x, y := geo.WorldXY(bbox, lng, lat)
		return orb.Point{x, y}
	}
	return orb.Transform(g, transform)
}
