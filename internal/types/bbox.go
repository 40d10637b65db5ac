package types

import "fmt"

// BBox is a geographic bounding box in WGS84 degrees. West<East, South<North
// is the only invariant the type itself enforces nothing else; callers
// validate on entry (see engineerr.InvalidInput).
type BBox struct {
	West  float64
	South float64
	East  float64
	North float64
}

// Valid reports whether the bbox is a proper, non-degenerate rectangle.
func (b BBox) Valid() bool {
	return b.West < b.East && b.South < b.North
}

// Width returns the bbox width in degrees of longitude.
func (b BBox) Width() float64 { return b.East - b.West }

// Height returns the bbox height in degrees of latitude.
func (b BBox) Height() float64 { return b.North - b.South }

// Center returns the (lng, lat) midpoint of the bbox.
func (b BBox) Center() (lng, lat float64) {
	return (b.West + b.East) / 2, (b.South + b.North) / 2
}

// ExpandByFraction grows the bbox outward by f times its width/height on
// each axis. f==0 returns b unchanged.
func (b BBox) ExpandByFraction(f float64) BBox {
	if f == 0 {
		return b
	}
	dx := b.Width() * f
	dy := b.Height() * f
	return BBox{
		West:  b.West - dx,
		South: b.South - dy,
		East:  b.East + dx,
		North: b.North + dy,
	}
}

// Contains reports whether (lng, lat) lies inside or on the bbox boundary.
func (b BBox) Contains(lng, lat float64) bool {
	return lng >= b.West && lng <= b.East && lat >= b.South && lat <= b.North
}

func (b BBox) String() string {
	return fmt.Sprintf("bbox(w=%.6f,s=%.6f,e=%.6f,n=%.6f)", b.West, b.South, b.East, b.North)
}
