package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/healthmap/internal/geo"
	"github.com/sells-group/healthmap/internal/store"
	"github.com/sells-group/healthmap/pkg/geocode"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func collect(t *testing.T, rowCh <-chan Row, errCh <-chan error) ([]Row, error) {
	t.Helper()
	var rows []Row
	for r := range rowCh {
		rows = append(rows, r)
	}
	return rows, <-errCh
}

func alphaIndex() *geo.Index {
	idx := geo.NewIndex()
	idx.Load([]geo.Region{{Name: "Alpha", Polygons: []geo.Polygon{{{
		{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 1, Lng: 1}, {Lat: 1, Lng: 0}, {Lat: 0, Lng: 0},
	}}}}})
	return idx
}

type memReports struct {
	mu      sync.Mutex
	reports []store.Report
	err     error
}

func (m *memReports) InsertReport(_ context.Context, r *store.Report) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, *r)
	return nil
}

func (m *memReports) byCategory() map[string]store.Report {
	out := make(map[string]store.Report)
	for _, r := range m.reports {
		out[r.Category] = r
	}
	return out
}

type memCounts struct {
	series map[string]map[time.Time]int
	calls  int
	err    error
}

func (m *memCounts) UpsertSeries(_ context.Context, series map[string]map[time.Time]int) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	if m.series == nil {
		m.series = make(map[string]map[time.Time]int)
	}
	for k, counts := range series {
		m.series[k] = counts
	}
	return nil
}

type addrGeocoder struct{}

func (addrGeocoder) ReverseGeocode(context.Context, float64, float64) (*geocode.ReverseResult, error) {
	return &geocode.ReverseResult{Address: "1 Main St"}, nil
}

func TestStreamRows_CSV(t *testing.T) {
	path := writeFile(t, "rows.csv", "\ufeffSeries_Key, Date ,count\n# comment\nclinic-7, 2024-06-01 ,3\nward-3,2024-06-02\n")

	rowCh, errCh := StreamRows(context.Background(), path)
	rows, err := collect(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "clinic-7", rows[0].Get("series_key"))
	assert.Equal(t, "2024-06-01", rows[0].Get("date"))
	assert.Equal(t, "3", rows[0].Get("count"))
	assert.Equal(t, "", rows[1].Get("count"))
}

func TestStreamRows_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.xlsx")
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Counts")
	require.NoError(t, err)
	for _, vals := range [][]string{{"series_key", "date", "count"}, {"clinic-7", "2024-06-01", "3"}, {"", "", ""}, {"clinic-7", "2024-06-02", "4"}} {
		row := sheet.AddRow()
		for _, v := range vals {
			row.AddCell().SetString(v)
		}
	}
	require.NoError(t, f.Save(path))

	rowCh, errCh := StreamRows(context.Background(), path)
	rows, err := collect(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "4", rows[1].Get("count"))
}

func TestStreamRows_Missing(t *testing.T) {
	rowCh, errCh := StreamRows(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	_, err := collect(t, rowCh, errCh)
	assert.Error(t, err)
}

func TestImportCounts(t *testing.T) {
	path := writeFile(t, "counts.csv", "series_key,date,count\nclinic-7,2024-06-01,3\nclinic-7,2024-06-01,2\nclinic-7,2024-06-02,4\nward-3,2024-06-01,0\n")
	w := &memCounts{}

	stats, err := ImportCounts(context.Background(), path, w)
	require.NoError(t, err)
	assert.Equal(t, CountStats{Rows: 4, Series: 2}, stats)

	d1 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, map[time.Time]int{d1: 5, d1.AddDate(0, 0, 1): 4}, w.series["clinic-7"])
	assert.Equal(t, map[time.Time]int{d1: 0}, w.series["ward-3"])
}

func TestImportCounts_MalformedRowWritesNothing(t *testing.T) {
	for name, body := range map[string]string{
		"negative": "series_key,date,count\nclinic-7,2024-06-01,3\nclinic-7,2024-06-02,-1\n",
		"bad date": "series_key,date,count\nclinic-7,06/01/2024,3\n",
		"no key":   "series_key,date,count\n,2024-06-01,3\n",
	} {
		t.Run(name, func(t *testing.T) {
			w := &memCounts{}
			_, err := ImportCounts(context.Background(), writeFile(t, "c.csv", body), w)
			assert.Error(t, err)
			assert.Empty(t, w.series)
		})
	}
}

func TestImportCounts_WritesAllSeriesAtOnce(t *testing.T) {
	path := writeFile(t, "counts.csv", "series_key,date,count\nclinic-7,2024-06-01,3\nward-3,2024-06-01,1\n")

	ok := &memCounts{}
	_, err := ImportCounts(context.Background(), path, ok)
	require.NoError(t, err)
	assert.Equal(t, 1, ok.calls)
	assert.Len(t, ok.series, 2)

	failing := &memCounts{err: errors.New("disk full")}
	stats, err := ImportCounts(context.Background(), path, failing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert 2 series")
	assert.Equal(t, 0, stats.Series)
	assert.Equal(t, 1, failing.calls)
}

func TestImportCounts_SQLiteRoundTrip(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	path := writeFile(t, "counts.csv", "series_key,date,count\nclinic-7,2024-06-01,3\nclinic-7,2024-06-03,1\n")
	_, err = ImportCounts(context.Background(), path, st)
	require.NoError(t, err)

	d1 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	got, err := st.DailyCounts(context.Background(), "clinic-7", d1, d1.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, map[time.Time]int{d1: 3, d1.AddDate(0, 0, 2): 1}, got)
}

const reportsCSV = `category,description,lat,lng,reported_at,address
fever,high fever,0.5,0.5,2024-06-15T09:00:00Z,
rash,,0.2,0.2,2024-06-15,12 Elm St
cough,,5,5,2024-06-15,
flu,,abc,0.5,,
chills,,95,0.5,,
,,0.5,0.5,,
`

func TestImportReports(t *testing.T) {
	w := &memReports{}
	path := writeFile(t, "reports.csv", reportsCSV)

	stats, err := ImportReports(context.Background(), path, w, alphaIndex(), WithGeocoder(addrGeocoder{}, time.Second), WithConcurrency(2))
	require.NoError(t, err)
	assert.Equal(t, ReportStats{Read: 6, Inserted: 2, OutOfBounds: 1, Malformed: 3, Enriched: 1}, stats)

	got := w.byCategory()
	require.Len(t, got, 2)
	assert.Equal(t, "Alpha", got["fever"].Region)
	assert.Equal(t, "1 Main St", got["fever"].Address)
	assert.Equal(t, time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC), got["fever"].ReportedAt)
	assert.Equal(t, "12 Elm St", got["rash"].Address, "existing address kept")
}

func TestImportReports_WithoutGeocoder(t *testing.T) {
	w := &memReports{}
	stats, err := ImportReports(context.Background(), writeFile(t, "r.csv", reportsCSV), w, alphaIndex())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Inserted)
	assert.Equal(t, 0, stats.Enriched)
	assert.Empty(t, w.byCategory()["fever"].Address)
}

func TestImportReports_StoreError(t *testing.T) {
	w := &memReports{err: errors.New("disk full")}
	_, err := ImportReports(context.Background(), writeFile(t, "r.csv", reportsCSV), w, alphaIndex())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
