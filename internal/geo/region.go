package geo

import (
	"math"

	"github.com/rotisserie/eris"
)

// ErrMalformedGeometry marks a region that cannot be indexed.
var ErrMalformedGeometry = eris.New("geo: malformed geometry")

// Ring is a closed linear ring; the first and last coordinates are equal.
type Ring []GeoPoint

// Polygon is an outer ring followed by zero or more hole rings.
type Polygon []Ring

// Region is a named administrative boundary made of one or more disjoint polygons.
type Region struct {
	Name     string    `json:"name"`
	Polygons []Polygon `json:"polygons"`
}

// BBox is an axis-aligned bounding box in degrees.
type BBox struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
	MaxLng float64 `json:"max_lng"`
	MaxLat float64 `json:"max_lat"`
}

// Contains reports whether p lies within the box, edges included.
func (b BBox) Contains(p GeoPoint) bool {
	return p.Lng >= b.MinLng && p.Lng <= b.MaxLng && p.Lat >= b.MinLat && p.Lat <= b.MaxLat
}

// Closed reports whether the ring's first and last coordinates are equal.
func (r Ring) Closed() bool {
	if len(r) == 0 {
		return false
	}
	return r[0] == r[len(r)-1]
}

// Validate checks the structural rules the index relies on.
func (r Region) Validate() error {
	if r.Name == "" {
		return eris.Wrap(ErrMalformedGeometry, "region has no name")
	}
	if len(r.Polygons) == 0 {
		return eris.Wrapf(ErrMalformedGeometry, "region %q has no polygons", r.Name)
	}
	for pi, poly := range r.Polygons {
		if len(poly) == 0 {
			return eris.Wrapf(ErrMalformedGeometry, "region %q polygon %d has no rings", r.Name, pi)
		}
		for ri, ring := range poly {
			if len(ring) < 4 {
				return eris.Wrapf(ErrMalformedGeometry, "region %q polygon %d ring %d has %d vertices", r.Name, pi, ri, len(ring))
			}
			if !ring.Closed() {
				return eris.Wrapf(ErrMalformedGeometry, "region %q polygon %d ring %d is not closed", r.Name, pi, ri)
			}
			for _, p := range ring {
				if err := p.Validate(); err != nil {
					return eris.Wrapf(ErrMalformedGeometry, "region %q polygon %d ring %d: %v", r.Name, pi, ri, err)
				}
			}
		}
	}
	return nil
}

// clone returns a deep copy so the index never shares memory with the caller.
func (r Region) clone() Region {
	out := Region{Name: r.Name, Polygons: make([]Polygon, len(r.Polygons))}
	for i, poly := range r.Polygons {
		cp := make(Polygon, len(poly))
		for j, ring := range poly {
			cp[j] = append(Ring(nil), ring...)
		}
		out.Polygons[i] = cp
	}
	return out
}

// bbox computes the region's bounding box from its outer rings.
func (r Region) bbox() BBox {
	b := BBox{MinLng: math.Inf(1), MinLat: math.Inf(1), MaxLng: math.Inf(-1), MaxLat: math.Inf(-1)}
	for _, poly := range r.Polygons {
		for _, p := range poly[0] {
			b.MinLng = math.Min(b.MinLng, p.Lng)
			b.MinLat = math.Min(b.MinLat, p.Lat)
			b.MaxLng = math.Max(b.MaxLng, p.Lng)
			b.MaxLat = math.Max(b.MaxLat, p.Lat)
		}
	}
	return b
}
