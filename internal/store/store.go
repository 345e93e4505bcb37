// Package store persists health reports and daily case counts in Postgres
// or SQLite.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/healthmap/internal/geo"
	"github.com/sells-group/healthmap/internal/proximity"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// Report is one community health report.
type Report struct {
	ID          string       `json:"id"`
	SeriesKey   string       `json:"series_key,omitempty"`
	Category    string       `json:"category"`
	Status      string       `json:"status"`
	Description string       `json:"description,omitempty"`
	Point       geo.GeoPoint `json:"point"`
	Region      string       `json:"region,omitempty"`
	Address     string       `json:"address,omitempty"`
	ReportedAt  time.Time    `json:"reported_at"`
	CreatedAt   time.Time    `json:"created_at"`
}

// DedupKey identifies reports describing the same event: same category and
// description on the same calendar day.
func (r Report) DedupKey() string {
	return proximity.DedupKey(r.Category, r.Description, r.ReportedAt.UTC().Format("2006-01-02"))
}

// Record converts r into a proximity candidate carrying r as its payload.
func (r Report) Record() proximity.Record {
	return proximity.Record{
		ID:        r.ID,
		Point:     r.Point,
		Timestamp: r.ReportedAt,
		DedupKey:  r.DedupKey(),
		Payload:   r,
	}
}

// Records converts reports into proximity candidates, preserving order.
func Records(reports []Report) []proximity.Record {
	out := make([]proximity.Record, len(reports))
	for i, r := range reports {
		out[i] = r.Record()
	}
	return out
}

// ReportFilter specifies criteria for listing reports. Zero fields match all.
// Bounds keeps reports inside the box, edges included.
type ReportFilter struct {
	Bounds   *geo.BBox `json:"bounds,omitempty"`
	Region   string    `json:"region,omitempty"`
	Status   string    `json:"status,omitempty"`
	Category string    `json:"category,omitempty"`
	Since    time.Time `json:"since,omitempty"`
	Until    time.Time `json:"until,omitempty"`
	Limit    int       `json:"limit,omitempty"`
	Offset   int       `json:"offset,omitempty"`
}

// defaultReportLimit caps unbounded report listings.
const defaultReportLimit = 1000

func (f ReportFilter) limit() int {
	if f.Limit <= 0 {
		return defaultReportLimit
	}
	return f.Limit
}

// reportPageSize is the page size AllReports reads with.
var reportPageSize = defaultReportLimit

// ReportLister lists reports a page at a time.
type ReportLister interface {
	Reports(ctx context.Context, filter ReportFilter) ([]Report, error)
}

// AllReports reads every report matching filter, newest first, paging past
// the per-call row cap. filter.Limit and filter.Offset are ignored.
func AllReports(ctx context.Context, l ReportLister, filter ReportFilter) ([]Report, error) {
	filter.Limit = reportPageSize
	filter.Offset = 0

	var out []Report
	for {
		page, err := l.Reports(ctx, filter)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < filter.Limit {
			return out, nil
		}
		filter.Offset += len(page)
	}
}

// Store defines the persistence interface for reports and case series.
type Store interface {
	// Reports
	InsertReport(ctx context.Context, r *Report) error
	Reports(ctx context.Context, filter ReportFilter) ([]Report, error)

	// Daily case counts
	UpsertDailyCounts(ctx context.Context, seriesKey string, counts map[time.Time]int) error
	UpsertSeries(ctx context.Context, series map[string]map[time.Time]int) error
	DailyCounts(ctx context.Context, seriesKey string, from, to time.Time) (map[time.Time]int, error)
	SeriesSpan(ctx context.Context, seriesKey string) (first, last time.Time, ok bool, err error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// prepareReport validates r and fills its ID and timestamps.
func prepareReport(r *Report, newID func() string) error {
	if r == nil {
		return eris.New("store: nil report")
	}
	if err := r.Point.Validate(); err != nil {
		return eris.Wrap(err, "store: report location")
	}
	if r.Category == "" {
		return eris.New("store: report category required")
	}
	if r.ID == "" {
		r.ID = newID()
	}
	if r.Status == "" {
		r.Status = "pending"
	}
	now := time.Now().UTC()
	if r.ReportedAt.IsZero() {
		r.ReportedAt = now
	}
	r.ReportedAt = r.ReportedAt.UTC()
	r.CreatedAt = now
	return nil
}

// day truncates t to a UTC calendar date.
func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// validateSeries checks every series before any is written.
func validateSeries(series map[string]map[time.Time]int) error {
	for key, counts := range series {
		if err := validateCounts(key, counts); err != nil {
			return err
		}
	}
	return nil
}

// sortedKeys returns the series keys in order.
func sortedKeys(series map[string]map[time.Time]int) []string {
	keys := make([]string, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// validateCounts rejects negative counts.
func validateCounts(seriesKey string, counts map[time.Time]int) error {
	if seriesKey == "" {
		return eris.New("store: series key required")
	}
	for d, n := range counts {
		if n < 0 {
			return eris.Errorf("store: negative count %d for %s on %s", n, seriesKey, d.Format("2006-01-02"))
		}
	}
	return nil
}
