// Package impact compares case counts in the weeks before and after an
// intervention date.
package impact

import (
	"time"

	"github.com/rotisserie/eris"
)

// DateLayout is the calendar date format used for series keys and JSON.
const DateLayout = "2006-01-02"

// ErrInvalidSeries is returned for negative counts or unparseable dates.
var ErrInvalidSeries = eris.New("impact: invalid series")

// Day truncates t to its calendar date, as midnight UTC. The date is read in
// t's own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Series is a daily case-count series. Days inside the covered span with no
// entry count as zero.
type Series struct {
	counts      map[time.Time]int
	first, last time.Time
	// spanned is set when coverage was given explicitly, so an empty window
	// of a longer series still covers.
	spanned bool
}

// NewSeries builds a Series, summing entries that fall on the same date.
func NewSeries(counts map[time.Time]int) (Series, error) {
	s := Series{counts: make(map[time.Time]int, len(counts))}
	for t, n := range counts {
		if n < 0 {
			return Series{}, eris.Wrapf(ErrInvalidSeries, "negative count %d on %s", n, t.Format(DateLayout))
		}
		d := Day(t)
		s.counts[d] += n
		if s.first.IsZero() || d.Before(s.first) {
			s.first = d
		}
		if s.last.IsZero() || d.After(s.last) {
			s.last = d
		}
	}
	return s, nil
}

// NewSeriesWithSpan builds a Series whose coverage is at least [first, last].
// Use it when counts holds only part of a longer series, such as the rows of
// one window read from a store that omits zero days.
func NewSeriesWithSpan(counts map[time.Time]int, first, last time.Time) (Series, error) {
	if last.Before(first) {
		return Series{}, eris.Wrapf(ErrInvalidSeries, "span %s after %s", first.Format(DateLayout), last.Format(DateLayout))
	}
	s, err := NewSeries(counts)
	if err != nil {
		return Series{}, err
	}
	first, last = Day(first), Day(last)
	if len(s.counts) == 0 || first.Before(s.first) {
		s.first = first
	}
	if len(s.counts) == 0 || last.After(s.last) {
		s.last = last
	}
	s.spanned = true
	return s, nil
}

// ParseSeries builds a Series from "YYYY-MM-DD" keys.
func ParseSeries(counts map[string]int) (Series, error) {
	byDay := make(map[time.Time]int, len(counts))
	for k, n := range counts {
		d, err := time.Parse(DateLayout, k)
		if err != nil {
			return Series{}, eris.Wrapf(ErrInvalidSeries, "date %q", k)
		}
		byDay[d] += n
	}
	return NewSeries(byDay)
}

// Len returns the number of dated entries.
func (s Series) Len() int { return len(s.counts) }

// Span returns the first and last covered dates. ok is false for an empty series.
func (s Series) Span() (first, last time.Time, ok bool) {
	if !s.covered() {
		return time.Time{}, time.Time{}, false
	}
	return s.first, s.last, true
}

// Count returns the count on day's date, or zero.
func (s Series) Count(day time.Time) int {
	return s.counts[Day(day)]
}

// Covers reports whether every date in [from, to] lies within the series span.
func (s Series) Covers(from, to time.Time) bool {
	if !s.covered() {
		return false
	}
	return !Day(from).Before(s.first) && !Day(to).After(s.last)
}

func (s Series) covered() bool {
	return s.spanned || len(s.counts) > 0
}

// Sum returns the total over the inclusive date range [from, to].
func (s Series) Sum(from, to time.Time) int {
	total := 0
	for d := Day(from); !d.After(Day(to)); d = d.AddDate(0, 0, 1) {
		total += s.counts[d]
	}
	return total
}
