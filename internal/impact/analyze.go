package impact

import (
	"encoding/json"
	"math"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/healthmap/internal/metrics"
)

// DaysPerBucket is the width of one bucket.
const DaysPerBucket = 7

// ErrInvalidWindow is returned for non-positive week counts or a zero event date.
var ErrInvalidWindow = eris.New("impact: invalid window")

// Window is the analysis span around an event.
type Window struct {
	EventDate   time.Time `json:"event_date"`
	BeforeWeeks int       `json:"before_weeks"`
	AfterWeeks  int       `json:"after_weeks"`
}

// Validate reports whether w is well formed.
func (w Window) Validate() error {
	if w.EventDate.IsZero() {
		return eris.Wrap(ErrInvalidWindow, "event date required")
	}
	if w.BeforeWeeks < 1 || w.AfterWeeks < 1 {
		return eris.Wrapf(ErrInvalidWindow, "weeks must be >= 1 (before=%d, after=%d)", w.BeforeWeeks, w.AfterWeeks)
	}
	return nil
}

// Start is the first date of the earliest before-bucket.
func (w Window) Start() time.Time {
	return Day(w.EventDate).AddDate(0, 0, -DaysPerBucket*w.BeforeWeeks+1)
}

// End is the last date of the latest after-bucket.
func (w Window) End() time.Time {
	return Day(w.EventDate).AddDate(0, 0, DaysPerBucket*w.AfterWeeks)
}

// Status says whether a Summary carries figures.
type Status string

// Statuses.
const (
	StatusAvailable    Status = "available"
	StatusNotAvailable Status = "not_available"
)

// ReasonInsufficientSeriesData marks a series that does not cover the window.
const ReasonInsufficientSeriesData = "insufficient_series_data"

// Trend is the presentational direction of change.
type Trend string

// Trends.
const (
	TrendImproved  Trend = "improved"
	TrendWorsened  Trend = "worsened"
	TrendUnchanged Trend = "unchanged"
	TrendUnknown   Trend = "unknown"
)

// undefinedBaselineJSON is the JSON form of an undefined percent change.
const undefinedBaselineJSON = "undefined_baseline"

// PercentChange is the relative change from the before total. It is
// undefined when the before total is zero; it is never NaN or infinite.
type PercentChange struct {
	value   float64
	defined bool
}

// Percent returns a defined PercentChange.
func Percent(v float64) PercentChange { return PercentChange{value: v, defined: true} }

// UndefinedBaseline is the percent change when the before total is zero.
var UndefinedBaseline = PercentChange{}

// Value returns the percentage and whether it is defined.
func (p PercentChange) Value() (float64, bool) { return p.value, p.defined }

// Defined reports whether the baseline was non-zero.
func (p PercentChange) Defined() bool { return p.defined }

// MarshalJSON encodes a number, or "undefined_baseline".
func (p PercentChange) MarshalJSON() ([]byte, error) {
	if !p.defined {
		return json.Marshal(undefinedBaselineJSON)
	}
	return json.Marshal(p.value)
}

// UnmarshalJSON accepts a number or "undefined_baseline".
func (p *PercentChange) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != undefinedBaselineJSON {
			return eris.Errorf("impact: unknown percent change %q", s)
		}
		*p = UndefinedBaseline
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return eris.Wrap(err, "impact: decode percent change")
	}
	*p = Percent(v)
	return nil
}

// Bucket is the total over an inclusive 7-day date range.
type Bucket struct {
	Start time.Time `json:"-"`
	End   time.Time `json:"-"`
	Total int       `json:"total"`
}

// MarshalJSON encodes dates as YYYY-MM-DD.
func (b Bucket) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start string `json:"start"`
		End   string `json:"end"`
		Total int    `json:"total"`
	}{b.Start.Format(DateLayout), b.End.Format(DateLayout), b.Total})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (b *Bucket) UnmarshalJSON(data []byte) error {
	var raw struct {
		Start string `json:"start"`
		End   string `json:"end"`
		Total int    `json:"total"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "impact: decode bucket")
	}
	start, err := time.Parse(DateLayout, raw.Start)
	if err != nil {
		return eris.Wrapf(err, "impact: bucket start %q", raw.Start)
	}
	end, err := time.Parse(DateLayout, raw.End)
	if err != nil {
		return eris.Wrapf(err, "impact: bucket end %q", raw.End)
	}
	*b = Bucket{Start: start, End: end, Total: raw.Total}
	return nil
}

// Summary is the chart-ready result of Analyze. When Status is
// StatusNotAvailable only Status, Reason and Window are set.
type Summary struct {
	Status        Status        `json:"status"`
	Reason        string        `json:"reason,omitempty"`
	Window        Window        `json:"window"`
	BeforeBuckets []Bucket      `json:"before_buckets,omitempty"`
	AfterBuckets  []Bucket      `json:"after_buckets,omitempty"`
	TotalBefore   int           `json:"total_before"`
	TotalAfter    int           `json:"total_after"`
	PercentChange PercentChange `json:"percent_change"`
	Trend         Trend         `json:"trend"`
}

// Analyze buckets s into w.BeforeWeeks weeks ending on the event date
// (oldest first) and w.AfterWeeks weeks starting the day after (nearest
// first). A series that does not span the whole window yields
// StatusNotAvailable; only a malformed window is an error.
func Analyze(s Series, w Window) (Summary, error) {
	if err := w.Validate(); err != nil {
		return Summary{}, err
	}
	w.EventDate = Day(w.EventDate)

	if !s.Covers(w.Start(), w.End()) {
		metrics.ImpactAnalysesTotal.WithLabelValues(string(StatusNotAvailable), string(TrendUnknown)).Inc()
		return Summary{
			Status:        StatusNotAvailable,
			Reason:        ReasonInsufficientSeriesData,
			Window:        w,
			PercentChange: UndefinedBaseline,
			Trend:         TrendUnknown,
		}, nil
	}

	sum := Summary{
		Status:        StatusAvailable,
		Window:        w,
		BeforeBuckets: make([]Bucket, w.BeforeWeeks),
		AfterBuckets:  make([]Bucket, w.AfterWeeks),
	}

	for i := range sum.BeforeBuckets {
		start := w.Start().AddDate(0, 0, DaysPerBucket*i)
		sum.BeforeBuckets[i] = bucket(s, start)
		sum.TotalBefore += sum.BeforeBuckets[i].Total
	}
	for i := range sum.AfterBuckets {
		start := w.EventDate.AddDate(0, 0, 1+DaysPerBucket*i)
		sum.AfterBuckets[i] = bucket(s, start)
		sum.TotalAfter += sum.AfterBuckets[i].Total
	}

	sum.PercentChange = percentChange(sum.TotalBefore, sum.TotalAfter)
	sum.Trend = trendOf(sum.PercentChange)

	metrics.ImpactAnalysesTotal.WithLabelValues(string(StatusAvailable), string(sum.Trend)).Inc()
	return sum, nil
}

func bucket(s Series, start time.Time) Bucket {
	end := start.AddDate(0, 0, DaysPerBucket-1)
	return Bucket{Start: start, End: end, Total: s.Sum(start, end)}
}

func percentChange(before, after int) PercentChange {
	if before == 0 {
		return UndefinedBaseline
	}
	v := float64(after-before) / float64(before) * 100
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return UndefinedBaseline
	}
	return Percent(v)
}

func trendOf(p PercentChange) Trend {
	v, ok := p.Value()
	switch {
	case !ok:
		return TrendUnknown
	case v < 0:
		return TrendImproved
	case v > 0:
		return TrendWorsened
	}
	return TrendUnchanged
}
