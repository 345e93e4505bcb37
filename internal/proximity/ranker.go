// Package proximity ranks report records by great-circle distance from an
// origin, within a radius.
package proximity

import (
	"math"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"github.com/samber/lo"

	"github.com/sells-group/healthmap/internal/geo"
	"github.com/sells-group/healthmap/internal/metrics"
)

// radiusTolerance absorbs floating-point error at the inclusive radius boundary.
const radiusTolerance = 1e-9

// ErrInvalidQuery is returned for a malformed origin, radius, or topK.
var ErrInvalidQuery = eris.New("proximity: invalid query")

// Record is one candidate. DedupKey groups records describing the same
// underlying report; an empty key never matches another record.
type Record struct {
	ID        string       `json:"id"`
	Point     geo.GeoPoint `json:"point"`
	Timestamp time.Time    `json:"timestamp"`
	DedupKey  string       `json:"dedup_key,omitempty"`
	Payload   any          `json:"payload,omitempty"`
}

// Ranked pairs a record with its distance from the query origin.
type Ranked struct {
	Record     Record  `json:"record"`
	DistanceKM float64 `json:"distance_km"`
}

// Predicate selects candidates before ranking.
type Predicate func(Record) bool

// Query describes one ranking request.
type Query struct {
	Origin   geo.GeoPoint
	RadiusKM float64
	TopK     int
	// Predicate is optional.
	Predicate Predicate
}

// Validate reports whether q is well formed.
func (q Query) Validate() error {
	if err := q.Origin.Validate(); err != nil {
		return eris.Wrap(ErrInvalidQuery, err.Error())
	}
	if math.IsNaN(q.RadiusKM) || math.IsInf(q.RadiusKM, 0) || q.RadiusKM < 0 {
		return eris.Wrapf(ErrInvalidQuery, "radius %v", q.RadiusKM)
	}
	if q.TopK < 0 {
		return eris.Wrapf(ErrInvalidQuery, "topK %d", q.TopK)
	}
	return nil
}

// Rank returns up to q.TopK candidates within q.RadiusKM of q.Origin (the
// boundary is inclusive), nearest first. Candidates are filtered by the
// predicate and then deduplicated, keeping the first record per key. Equal
// distances keep input order. candidates is not modified.
func Rank(q Query, candidates []Record) ([]Ranked, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	metrics.ProximityQueriesTotal.Inc()

	filtered := candidates
	if q.Predicate != nil {
		filtered = lo.Filter(candidates, func(r Record, _ int) bool { return q.Predicate(r) })
	}
	filtered = dedup(filtered)

	ranked := make([]Ranked, 0, len(filtered))
	for _, r := range filtered {
		if r.Point.Validate() != nil {
			continue
		}
		d := geo.Haversine(q.Origin, r.Point)
		if d <= q.RadiusKM+radiusTolerance {
			ranked = append(ranked, Ranked{Record: r, DistanceKM: d})
		}
	}

	slices.SortStableFunc(ranked, func(a, b Ranked) int {
		switch {
		case a.DistanceKM < b.DistanceKM:
			return -1
		case a.DistanceKM > b.DistanceKM:
			return 1
		}
		return 0
	})

	if len(ranked) > q.TopK {
		ranked = ranked[:q.TopK]
	}
	metrics.ProximityResults.Observe(float64(len(ranked)))
	return ranked, nil
}

// dedup keeps the first record for each non-empty DedupKey.
func dedup(records []Record) []Record {
	seen := make(map[string]bool, len(records))
	return lo.Filter(records, func(r Record, _ int) bool {
		if r.DedupKey == "" {
			return true
		}
		if seen[r.DedupKey] {
			return false
		}
		seen[r.DedupKey] = true
		return true
	})
}
