package ingest

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/healthmap/internal/geo"
	"github.com/sells-group/healthmap/internal/impact"
	"github.com/sells-group/healthmap/internal/store"
	"github.com/sells-group/healthmap/internal/validate"
	"github.com/sells-group/healthmap/pkg/geocode"
)

// ReportWriter persists reports. store.Store implements it.
type ReportWriter interface {
	InsertReport(ctx context.Context, r *store.Report) error
}

// ReportStats summarizes a report import.
type ReportStats struct {
	Read        int `json:"read"`
	Inserted    int `json:"inserted"`
	OutOfBounds int `json:"out_of_bounds"`
	Malformed   int `json:"malformed"`
	Enriched    int `json:"enriched"`
}

// Option configures ImportReports.
type Option func(*importer)

// WithGeocoder enriches imported reports that carry no address.
func WithGeocoder(gc geocode.Client, timeout time.Duration) Option {
	return func(im *importer) {
		im.geocoder = gc
		if timeout > 0 {
			im.timeout = timeout
		}
	}
}

// WithConcurrency bounds concurrent enrich-and-insert work.
func WithConcurrency(n int) Option {
	return func(im *importer) {
		if n > 0 {
			im.concurrency = n
		}
	}
}

type importer struct {
	geocoder    geocode.Client
	timeout     time.Duration
	concurrency int
}

// ImportReports reads reports from path, validates each pin against locator,
// and inserts the ones inside a region with their region name set.
// Out-of-bounds and malformed rows are counted and skipped. Columns: id,
// category, status, description, lat, lng, reported_at, series_key, address.
func ImportReports(ctx context.Context, path string, w ReportWriter, locator validate.Locator, opts ...Option) (ReportStats, error) {
	im := importer{timeout: 3 * time.Second, concurrency: 4}
	for _, o := range opts {
		o(&im)
	}
	log := zap.L().With(zap.String("component", "ingest"), zap.String("path", path))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.concurrency)

	var stats ReportStats
	var inserted, enriched atomic.Int64

	rowCh, errCh := StreamRows(gctx, path)
	for row := range rowCh {
		stats.Read++

		r, err := parseReport(row)
		if err != nil {
			stats.Malformed++
			log.Warn("skipping malformed report", zap.Int("line", row.Line), zap.Error(err))
			continue
		}

		res, err := validate.Check(locator, r.Point)
		if err != nil {
			stats.Malformed++
			log.Warn("skipping malformed report", zap.Int("line", row.Line), zap.Error(err))
			continue
		}
		if !res.Valid {
			stats.OutOfBounds++
			log.Debug("skipping out-of-bounds report", zap.Int("line", row.Line))
			continue
		}
		r.Region = res.RegionName

		g.Go(func() error {
			if r.Address == "" && im.geocoder != nil {
				lctx, cancel := context.WithTimeout(gctx, im.timeout)
				res = validate.Enrich(lctx, im.geocoder, res)
				cancel()
				if res.Address != "" {
					r.Address = res.Address
					enriched.Add(1)
				}
			}
			if err := w.InsertReport(gctx, &r); err != nil {
				return eris.Wrapf(err, "ingest: line %d", row.Line)
			}
			inserted.Add(1)
			return nil
		})
	}

	waitErr := g.Wait()
	streamErr := <-errCh

	stats.Inserted = int(inserted.Load())
	stats.Enriched = int(enriched.Load())
	if waitErr != nil {
		return stats, waitErr
	}
	if streamErr != nil {
		return stats, streamErr
	}

	log.Info("reports imported",
		zap.Int("read", stats.Read),
		zap.Int("inserted", stats.Inserted),
		zap.Int("out_of_bounds", stats.OutOfBounds),
		zap.Int("malformed", stats.Malformed),
		zap.Int("enriched", stats.Enriched),
	)
	return stats, nil
}

func parseReport(row Row) (store.Report, error) {
	lat, err := strconv.ParseFloat(row.Get("lat"), 64)
	if err != nil {
		return store.Report{}, eris.Wrapf(err, "lat %q", row.Get("lat"))
	}
	lng, err := strconv.ParseFloat(row.Get("lng"), 64)
	if err != nil {
		return store.Report{}, eris.Wrapf(err, "lng %q", row.Get("lng"))
	}
	if row.Get("category") == "" {
		return store.Report{}, eris.New("category required")
	}

	r := store.Report{
		ID:          row.Get("id"),
		SeriesKey:   row.Get("series_key"),
		Category:    row.Get("category"),
		Status:      row.Get("status"),
		Description: row.Get("description"),
		Address:     row.Get("address"),
		Point:       geo.GeoPoint{Lat: lat, Lng: lng},
	}
	if s := row.Get("reported_at"); s != "" {
		if r.ReportedAt, err = parseTimestamp(s); err != nil {
			return store.Report{}, err
		}
	}
	return r, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(impact.DateLayout, s); err == nil {
		return t, nil
	}
	return time.Time{}, eris.Errorf("reported_at %q is neither RFC 3339 nor YYYY-MM-DD", s)
}
