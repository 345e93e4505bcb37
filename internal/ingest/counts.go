package ingest

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/healthmap/internal/impact"
)

// CountWriter persists daily counts for several series at once, all or
// nothing. store.Store implements it.
type CountWriter interface {
	UpsertSeries(ctx context.Context, series map[string]map[time.Time]int) error
}

// CountStats summarizes a count import.
type CountStats struct {
	Rows   int `json:"rows"`
	Series int `json:"series"`
}

// ImportCounts reads series_key, date, count rows from path and upserts them
// in one write. Repeated dates within a series are summed. Any malformed row,
// or a failed write, leaves the store unchanged.
func ImportCounts(ctx context.Context, path string, w CountWriter) (CountStats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bySeries := make(map[string]map[time.Time]int)
	var stats CountStats

	rowCh, errCh := StreamRows(ctx, path)
	for row := range rowCh {
		key := row.Get("series_key")
		if key == "" {
			return stats, eris.Errorf("ingest: line %d: series_key required", row.Line)
		}
		d, err := time.Parse(impact.DateLayout, row.Get("date"))
		if err != nil {
			return stats, eris.Wrapf(err, "ingest: line %d: date", row.Line)
		}
		n, err := strconv.Atoi(row.Get("count"))
		if err != nil || n < 0 {
			return stats, eris.Errorf("ingest: line %d: count %q must be a non-negative integer", row.Line, row.Get("count"))
		}

		if bySeries[key] == nil {
			bySeries[key] = make(map[time.Time]int)
		}
		bySeries[key][d] += n
		stats.Rows++
	}
	if err := <-errCh; err != nil {
		return stats, err
	}

	if len(bySeries) > 0 {
		if err := w.UpsertSeries(ctx, bySeries); err != nil {
			return stats, eris.Wrapf(err, "ingest: upsert %d series", len(bySeries))
		}
	}
	stats.Series = len(bySeries)

	zap.L().Info("daily counts imported",
		zap.String("component", "ingest"),
		zap.String("path", path),
		zap.Int("rows", stats.Rows),
		zap.Int("series", stats.Series),
	)
	return stats, nil
}
