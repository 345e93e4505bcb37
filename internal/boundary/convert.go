// Package boundary decodes administrative boundary data (GeoJSON, shapefiles,
// PostGIS tables) into regions for the geo index.
package boundary

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/healthmap/internal/geo"
)

// ErrUnsupportedGeometry is returned for geometries other than Polygon and MultiPolygon.
var ErrUnsupportedGeometry = eris.New("boundary: unsupported geometry type")

// Decoded is the result of decoding a boundary collection. Features that could
// not be turned into regions are listed in Skipped.
type Decoded struct {
	Regions []geo.Region
	Skipped []geo.SkippedRegion
}

func (d *Decoded) skip(name, reason string) {
	d.Skipped = append(d.Skipped, geo.SkippedRegion{Name: name, Reason: reason})
}

// polygonsFromGeom converts a go-geom Polygon or MultiPolygon into index
// polygons. Coordinates are read as (lng, lat).
func polygonsFromGeom(g geom.T) ([]geo.Polygon, error) {
	switch t := g.(type) {
	case *geom.Polygon:
		return []geo.Polygon{convertPolygon(t)}, nil
	case *geom.MultiPolygon:
		polys := make([]geo.Polygon, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			polys = append(polys, convertPolygon(t.Polygon(i)))
		}
		return polys, nil
	case nil:
		return nil, eris.Wrap(ErrUnsupportedGeometry, "null geometry")
	default:
		return nil, eris.Wrapf(ErrUnsupportedGeometry, "%T", g)
	}
}

func convertPolygon(p *geom.Polygon) geo.Polygon {
	poly := make(geo.Polygon, 0, p.NumLinearRings())
	for i := 0; i < p.NumLinearRings(); i++ {
		poly = append(poly, convertCoords(p.LinearRing(i).Coords()))
	}
	return poly
}

func convertCoords(coords []geom.Coord) geo.Ring {
	ring := make(geo.Ring, 0, len(coords))
	for _, c := range coords {
		ring = append(ring, geo.GeoPoint{Lng: c.X(), Lat: c.Y()})
	}
	return ring
}
