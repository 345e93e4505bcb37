package geo

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Focus tells the map where to move the camera. It is either a RegionFocus
// or a PointFocus.
type Focus interface {
	Target() GeoPoint
	isFocus()
}

// RegionFocus centers on a region's centroid and frames its bounding box.
type RegionFocus struct {
	Region   string   `json:"region"`
	Centroid GeoPoint `json:"centroid"`
	Bounds   BBox     `json:"bounds"`
}

// PointFocus centers on a single coordinate at a fixed zoom.
type PointFocus struct {
	Point GeoPoint `json:"point"`
	Zoom  int      `json:"zoom"`
}

// DefaultPointZoom is the zoom level used for point focus when none is given.
const DefaultPointZoom = 14

// Target implements Focus.
func (f RegionFocus) Target() GeoPoint { return f.Centroid }

// Target implements Focus.
func (f PointFocus) Target() GeoPoint { return f.Point }

func (RegionFocus) isFocus() {}
func (PointFocus) isFocus()  {}

// MarshalJSON tags the payload with its kind.
func (f RegionFocus) MarshalJSON() ([]byte, error) {
	type alias RegionFocus
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "region", alias: alias(f)})
}

// MarshalJSON tags the payload with its kind.
func (f PointFocus) MarshalJSON() ([]byte, error) {
	type alias PointFocus
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "point", alias: alias(f)})
}

// FocusRegion builds a RegionFocus from the index.
func (idx *Index) FocusRegion(name string) (RegionFocus, error) {
	c, ok := idx.Centroid(name)
	if !ok {
		return RegionFocus{}, eris.Errorf("geo: unknown region %q", name)
	}
	b, _ := idx.BBox(name)
	return RegionFocus{Region: name, Centroid: c, Bounds: b}, nil
}

// FocusPoint builds a PointFocus, defaulting the zoom when zoom <= 0.
func FocusPoint(p GeoPoint, zoom int) (PointFocus, error) {
	if err := p.Validate(); err != nil {
		return PointFocus{}, err
	}
	if zoom <= 0 {
		zoom = DefaultPointZoom
	}
	return PointFocus{Point: p, Zoom: zoom}, nil
}
