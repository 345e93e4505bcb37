// Package geo provides the boundary index used to validate report locations:
// point-in-region containment, region centroids, and great-circle distance.
package geo

import (
	"math"

	"github.com/rotisserie/eris"
)

// EarthRadiusKM is the mean Earth radius used for great-circle distances.
const EarthRadiusKM = 6371.0

// ErrInvalidPoint is returned when a coordinate is NaN, infinite, or out of range.
var ErrInvalidPoint = eris.New("geo: invalid point")

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate reports whether the point has finite, in-range coordinates.
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return eris.Wrapf(ErrInvalidPoint, "non-finite coordinate (%v, %v)", p.Lat, p.Lng)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return eris.Wrapf(ErrInvalidPoint, "latitude %v out of range", p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return eris.Wrapf(ErrInvalidPoint, "longitude %v out of range", p.Lng)
	}
	return nil
}

// Haversine returns the great-circle distance between a and b in kilometers.
func Haversine(a, b GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKM * c
}

// boundsMarginDeg pads BoundsAround so points on the radius edge stay inside.
const boundsMarginDeg = 1e-6

// BoundsAround returns a box containing every point within radiusKM of p.
// Near the poles, or when the box would cross the antimeridian, it spans all
// longitudes.
func BoundsAround(p GeoPoint, radiusKM float64) BBox {
	dLat := radiusKM/(EarthRadiusKM*math.Pi/180) + boundsMarginDeg
	b := BBox{
		MinLat: math.Max(p.Lat-dLat, -90),
		MaxLat: math.Min(p.Lat+dLat, 90),
		MinLng: -180,
		MaxLng: 180,
	}
	if b.MinLat == -90 || b.MaxLat == 90 {
		return b
	}
	widest := math.Max(math.Abs(b.MinLat), math.Abs(b.MaxLat))
	dLng := dLat / math.Cos(widest*math.Pi/180)
	if p.Lng-dLng < -180 || p.Lng+dLng > 180 {
		return b
	}
	b.MinLng, b.MaxLng = p.Lng-dLng, p.Lng+dLng
	return b
}
