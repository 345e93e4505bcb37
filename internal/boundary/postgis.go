package boundary

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/healthmap/internal/db"
)

// PostGISSource loads regions from a table with a name column and a
// Polygon/MultiPolygon geometry column, in load_order then name order.
type PostGISSource struct {
	pool       db.Pool
	table      string
	nameColumn string
	geomColumn string
}

// NewPostGISSource creates a PostGISSource. Empty column names default to
// "name" and "geom".
func NewPostGISSource(pool db.Pool, table, nameColumn, geomColumn string) *PostGISSource {
	if nameColumn == "" {
		nameColumn = "name"
	}
	if geomColumn == "" {
		geomColumn = "geom"
	}
	return &PostGISSource{pool: pool, table: table, nameColumn: nameColumn, geomColumn: geomColumn}
}

// Name implements Source.
func (s *PostGISSource) Name() string { return "postgis:" + s.table }

// Fetch implements Source.
func (s *PostGISSource) Fetch(ctx context.Context) (Decoded, error) {
	query := fmt.Sprintf(
		`SELECT %s, ST_AsEWKB(%s) FROM %s ORDER BY load_order, %s`,
		db.Identifier(s.nameColumn).Sanitize(),
		db.Identifier(s.geomColumn).Sanitize(),
		db.Identifier(s.table).Sanitize(),
		db.Identifier(s.nameColumn).Sanitize(),
	)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return Decoded{}, eris.Wrap(err, "boundary: query regions")
	}
	defer rows.Close()

	var out Decoded
	for rows.Next() {
		var name string
		var data []byte
		if err := rows.Scan(&name, &data); err != nil {
			return Decoded{}, eris.Wrap(err, "boundary: scan region row")
		}

		g, err := ewkb.Unmarshal(data)
		if err != nil {
			zap.L().Warn("boundary: skipping undecodable geometry", zap.String("region", name), zap.Error(err))
			out.skip(name, err.Error())
			continue
		}
		polys, err := polygonsFromGeom(g)
		if err != nil {
			zap.L().Warn("boundary: skipping region geometry", zap.String("region", name), zap.Error(err))
			out.skip(name, err.Error())
			continue
		}
		out.Regions = append(out.Regions, regionOf(name, polys))
	}
	if err := rows.Err(); err != nil {
		return Decoded{}, eris.Wrap(err, "boundary: iterate region rows")
	}
	return out, nil
}
