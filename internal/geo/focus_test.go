package geo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFocusRegion(t *testing.T) {
	idx := NewIndex()
	idx.Load([]Region{{Name: "Alpha", Polygons: []Polygon{{square(0, 0, 2, 4)}}}})

	f, err := idx.FocusRegion("Alpha")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", f.Region)
	assert.InDelta(t, 2.0, f.Target().Lat, 1e-12)
	assert.InDelta(t, 1.0, f.Target().Lng, 1e-12)
	assert.Equal(t, BBox{MinLng: 0, MinLat: 0, MaxLng: 2, MaxLat: 4}, f.Bounds)

	_, err = idx.FocusRegion("Beta")
	assert.Error(t, err)
}

func TestFocusPoint(t *testing.T) {
	f, err := FocusPoint(GeoPoint{Lat: 1, Lng: 2}, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultPointZoom, f.Zoom)

	_, err = FocusPoint(GeoPoint{Lat: 100, Lng: 2}, 10)
	assert.ErrorIs(t, err, ErrInvalidPoint)
}

func TestFocus_JSONKind(t *testing.T) {
	foci := []Focus{
		RegionFocus{Region: "Alpha"},
		PointFocus{Point: GeoPoint{Lat: 1, Lng: 2}, Zoom: 12},
	}
	data, err := json.Marshal(foci)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "region", decoded[0]["kind"])
	assert.Equal(t, "Alpha", decoded[0]["region"])
	assert.Equal(t, "point", decoded[1]["kind"])
	assert.EqualValues(t, 12, decoded[1]["zoom"])
}
