package boundary

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

func ewkbSquare(t *testing.T, minX, minY, maxX, maxY float64) []byte {
	t.Helper()
	p := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}}).SetSRID(4326)
	data, err := ewkb.Marshal(p, binary.LittleEndian)
	require.NoError(t, err)
	return data
}

func ewkbPoint(t *testing.T) []byte {
	t.Helper()
	data, err := ewkb.Marshal(geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{1, 2}), binary.LittleEndian)
	require.NoError(t, err)
	return data
}

func TestPostGISSource_Fetch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"name", "geom"}).
		AddRow("Alpha", ewkbSquare(t, 0, 0, 1, 1)).
		AddRow("Pin", ewkbPoint(t)).
		AddRow("Broken", []byte{0x01, 0x02}).
		AddRow("Beta", ewkbSquare(t, 2, 2, 3, 3))
	mock.ExpectQuery(`SELECT "name", ST_AsEWKB\("geom"\) FROM "health"."regions" ORDER BY load_order, "name"`).
		WillReturnRows(rows)

	src := NewPostGISSource(mock, "health.regions", "", "")
	assert.Equal(t, "postgis:health.regions", src.Name())

	d, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, d.Regions, 2)
	assert.Equal(t, "Alpha", d.Regions[0].Name)
	assert.Equal(t, "Beta", d.Regions[1].Name)
	assert.Equal(t, 3.0, d.Regions[1].Polygons[0][0][2].Lng)

	require.Len(t, d.Skipped, 2)
	assert.Equal(t, "Pin", d.Skipped[0].Name)
	assert.Equal(t, "Broken", d.Skipped[1].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGISSource_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT`).WillReturnError(errors.New("relation does not exist"))

	_, err = NewPostGISSource(mock, "regions", "region_name", "boundary").Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query regions")
	assert.NoError(t, mock.ExpectationsWereMet())
}
