package geo

import "math"

// areaEpsilon is the squared-degree area under which a ring is treated as degenerate.
const areaEpsilon = 1e-12

// ringContains runs a ray-casting crossing test of p against a single ring.
// Longitude is the x axis, latitude the y axis.
func ringContains(ring Ring, p GeoPoint) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].Lng, ring[i].Lat
		xj, yj := ring[j].Lng, ring[j].Lat
		if (yi > p.Lat) != (yj > p.Lat) {
			xCross := (xj-xi)*(p.Lat-yi)/(yj-yi) + xi
			if p.Lng < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

// polygonContains applies the even-odd rule across all rings, so holes subtract.
func polygonContains(poly Polygon, p GeoPoint) bool {
	inside := false
	for _, ring := range poly {
		if ringContains(ring, p) {
			inside = !inside
		}
	}
	return inside
}

// regionContains reports whether any polygon of the region contains p.
func regionContains(r Region, p GeoPoint) bool {
	for _, poly := range r.Polygons {
		if polygonContains(poly, p) {
			return true
		}
	}
	return false
}

// ringCentroid returns the shoelace centroid and signed area of a ring.
// Zero-area rings return the vertex mean with an area of 0.
func ringCentroid(ring Ring) (GeoPoint, float64) {
	var area, cx, cy float64
	for i := 0; i+1 < len(ring); i++ {
		x0, y0 := ring[i].Lng, ring[i].Lat
		x1, y1 := ring[i+1].Lng, ring[i+1].Lat
		cross := x0*y1 - x1*y0
		area += cross
		cx += (x0 + x1) * cross
		cy += (y0 + y1) * cross
	}
	area /= 2
	if math.Abs(area) < areaEpsilon {
		return vertexMean([]Ring{ring}), 0
	}
	return GeoPoint{Lat: cy / (6 * area), Lng: cx / (6 * area)}, area
}

// polygonCentroid combines ring centroids: the outer ring adds its area and
// every hole removes its own.
func polygonCentroid(poly Polygon) (GeoPoint, float64) {
	var sumA, sumX, sumY float64
	for i, ring := range poly {
		c, a := ringCentroid(ring)
		w := math.Abs(a)
		if i > 0 {
			w = -w
		}
		sumA += w
		sumX += w * c.Lng
		sumY += w * c.Lat
	}
	if math.Abs(sumA) < areaEpsilon {
		return vertexMean(poly), 0
	}
	return GeoPoint{Lat: sumY / sumA, Lng: sumX / sumA}, math.Abs(sumA)
}

// regionCentroid weights each part's centroid by its absolute area. When no
// part has measurable area it falls back to the mean of every ring vertex.
func regionCentroid(r Region) GeoPoint {
	var sumA, sumX, sumY float64
	var rings []Ring
	for _, poly := range r.Polygons {
		c, a := polygonCentroid(poly)
		sumA += a
		sumX += a * c.Lng
		sumY += a * c.Lat
		rings = append(rings, poly...)
	}
	if sumA < areaEpsilon {
		return vertexMean(rings)
	}
	return GeoPoint{Lat: sumY / sumA, Lng: sumX / sumA}
}

// vertexMean averages ring vertices, skipping each ring's closing duplicate.
func vertexMean(rings []Ring) GeoPoint {
	var sumLat, sumLng float64
	var n int
	for _, ring := range rings {
		pts := ring
		if ring.Closed() && len(ring) > 1 {
			pts = ring[:len(ring)-1]
		}
		for _, p := range pts {
			sumLat += p.Lat
			sumLng += p.Lng
			n++
		}
	}
	if n == 0 {
		return GeoPoint{}
	}
	return GeoPoint{Lat: sumLat / float64(n), Lng: sumLng / float64(n)}
}
