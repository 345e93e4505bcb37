package impact

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

// constantSeries returns count c on every date in [from, to].
func constantSeries(t *testing.T, from, to string, c int) Series {
	t.Helper()
	counts := map[time.Time]int{}
	for d := date(from); !d.After(date(to)); d = d.AddDate(0, 0, 1) {
		counts[d] = c
	}
	s, err := NewSeries(counts)
	require.NoError(t, err)
	return s
}

func TestAnalyze_ConstantSeriesTwoWeeks(t *testing.T) {
	s := constantSeries(t, "2024-06-02", "2024-06-29", 1)

	sum, err := Analyze(s, Window{EventDate: date("2024-06-15"), BeforeWeeks: 2, AfterWeeks: 2})
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, sum.Status)
	assert.Equal(t, 14, sum.TotalBefore)
	assert.Equal(t, 14, sum.TotalAfter)
	v, ok := sum.PercentChange.Value()
	require.True(t, ok)
	assert.Equal(t, 0.0, v)
	assert.Equal(t, TrendUnchanged, sum.Trend)

	require.Len(t, sum.BeforeBuckets, 2)
	assert.Equal(t, date("2024-06-02"), sum.BeforeBuckets[0].Start)
	assert.Equal(t, date("2024-06-08"), sum.BeforeBuckets[0].End)
	assert.Equal(t, date("2024-06-09"), sum.BeforeBuckets[1].Start)
	assert.Equal(t, date("2024-06-15"), sum.BeforeBuckets[1].End)

	require.Len(t, sum.AfterBuckets, 2)
	assert.Equal(t, date("2024-06-16"), sum.AfterBuckets[0].Start)
	assert.Equal(t, date("2024-06-22"), sum.AfterBuckets[0].End)
	assert.Equal(t, date("2024-06-29"), sum.AfterBuckets[1].End)
	for _, b := range append(sum.BeforeBuckets, sum.AfterBuckets...) {
		assert.Equal(t, 7, b.Total)
	}
}

func TestAnalyze_ConstantSeriesAnyWindow(t *testing.T) {
	s := constantSeries(t, "2023-01-01", "2023-12-31", 5)
	for before := 1; before <= 6; before++ {
		for after := 1; after <= 6; after++ {
			sum, err := Analyze(s, Window{EventDate: date("2023-07-01"), BeforeWeeks: before, AfterWeeks: after})
			require.NoError(t, err)
			assert.Equal(t, TrendUnchanged, sum.Trend, "before=%d after=%d", before, after)
			v, ok := sum.PercentChange.Value()
			assert.True(t, ok)
			assert.Equal(t, 0.0, v)
			assert.Equal(t, 35*before, sum.TotalBefore)
			assert.Equal(t, 35*after, sum.TotalAfter)
		}
	}
}

func TestAnalyze_Trends(t *testing.T) {
	counts := map[string]int{}
	for d := date("2024-06-02"); !d.After(date("2024-06-29")); d = d.AddDate(0, 0, 1) {
		if d.After(date("2024-06-15")) {
			counts[d.Format(DateLayout)] = 1
		} else {
			counts[d.Format(DateLayout)] = 2
		}
	}
	s, err := ParseSeries(counts)
	require.NoError(t, err)

	sum, err := Analyze(s, Window{EventDate: date("2024-06-15"), BeforeWeeks: 2, AfterWeeks: 2})
	require.NoError(t, err)
	assert.Equal(t, 28, sum.TotalBefore)
	assert.Equal(t, 14, sum.TotalAfter)
	v, _ := sum.PercentChange.Value()
	assert.InDelta(t, -50.0, v, 1e-9)
	assert.Equal(t, TrendImproved, sum.Trend)

	counts["2024-06-20"] = 15
	s, err = ParseSeries(counts)
	require.NoError(t, err)
	sum, err = Analyze(s, Window{EventDate: date("2024-06-15"), BeforeWeeks: 2, AfterWeeks: 2})
	require.NoError(t, err)
	assert.Equal(t, 28, sum.TotalAfter)
	assert.Equal(t, TrendUnchanged, sum.Trend)

	counts["2024-06-21"] = 5
	s, err = ParseSeries(counts)
	require.NoError(t, err)
	sum, err = Analyze(s, Window{EventDate: date("2024-06-15"), BeforeWeeks: 2, AfterWeeks: 2})
	require.NoError(t, err)
	assert.Equal(t, TrendWorsened, sum.Trend)
}

func TestAnalyze_UndefinedBaseline(t *testing.T) {
	counts := map[time.Time]int{}
	for d := date("2024-06-02"); !d.After(date("2024-06-29")); d = d.AddDate(0, 0, 1) {
		if d.After(date("2024-06-15")) {
			counts[d] = 3
		} else {
			counts[d] = 0
		}
	}
	s, err := NewSeries(counts)
	require.NoError(t, err)

	sum, err := Analyze(s, Window{EventDate: date("2024-06-15"), BeforeWeeks: 2, AfterWeeks: 2})
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, sum.Status)
	assert.Equal(t, 0, sum.TotalBefore)
	assert.Equal(t, 42, sum.TotalAfter)
	assert.False(t, sum.PercentChange.Defined())
	assert.Equal(t, UndefinedBaseline, sum.PercentChange)
	assert.Equal(t, TrendUnknown, sum.Trend)

	v, _ := sum.PercentChange.Value()
	assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))

	data, err := json.Marshal(sum)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"percent_change":"undefined_baseline"`)
}

func TestAnalyze_GapsCountAsZero(t *testing.T) {
	s, err := ParseSeries(map[string]int{"2024-06-02": 4, "2024-06-10": 6, "2024-06-29": 1})
	require.NoError(t, err)

	sum, err := Analyze(s, Window{EventDate: date("2024-06-15"), BeforeWeeks: 2, AfterWeeks: 2})
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, sum.Status)
	assert.Equal(t, 4, sum.BeforeBuckets[0].Total)
	assert.Equal(t, 6, sum.BeforeBuckets[1].Total)
	assert.Equal(t, 0, sum.AfterBuckets[0].Total)
	assert.Equal(t, 1, sum.AfterBuckets[1].Total)
}

func TestAnalyze_InsufficientData(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
	}{
		{"starts one day late", "2024-06-03", "2024-06-29"},
		{"ends one day early", "2024-06-02", "2024-06-28"},
		{"entirely before", "2024-01-01", "2024-02-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := constantSeries(t, tt.from, tt.to, 1)
			sum, err := Analyze(s, Window{EventDate: date("2024-06-15"), BeforeWeeks: 2, AfterWeeks: 2})
			require.NoError(t, err)
			assert.Equal(t, StatusNotAvailable, sum.Status)
			assert.Equal(t, ReasonInsufficientSeriesData, sum.Reason)
			assert.Empty(t, sum.BeforeBuckets)
			assert.Equal(t, TrendUnknown, sum.Trend)
		})
	}

	var empty Series
	sum, err := Analyze(empty, Window{EventDate: date("2024-06-15"), BeforeWeeks: 1, AfterWeeks: 1})
	require.NoError(t, err)
	assert.Equal(t, StatusNotAvailable, sum.Status)
}

func TestAnalyze_InvalidWindow(t *testing.T) {
	s := constantSeries(t, "2024-06-02", "2024-06-29", 1)
	for _, w := range []Window{
		{EventDate: date("2024-06-15"), BeforeWeeks: 0, AfterWeeks: 2},
		{EventDate: date("2024-06-15"), BeforeWeeks: 2, AfterWeeks: -1},
		{BeforeWeeks: 1, AfterWeeks: 1},
	} {
		_, err := Analyze(s, w)
		assert.ErrorIs(t, err, ErrInvalidWindow)
	}
}

func TestAnalyze_EventDateTimeOfDayIgnored(t *testing.T) {
	s := constantSeries(t, "2024-06-02", "2024-06-29", 1)
	loc := time.FixedZone("UTC-5", -5*3600)

	sum, err := Analyze(s, Window{EventDate: time.Date(2024, 6, 15, 23, 30, 0, 0, loc), BeforeWeeks: 2, AfterWeeks: 2})
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, sum.Status)
	assert.Equal(t, date("2024-06-15"), sum.Window.EventDate)
}

func TestAnalyze_Deterministic(t *testing.T) {
	s, err := ParseSeries(map[string]int{"2024-06-01": 3, "2024-06-12": 9, "2024-06-20": 2, "2024-06-30": 1})
	require.NoError(t, err)
	w := Window{EventDate: date("2024-06-15"), BeforeWeeks: 2, AfterWeeks: 2}

	first, err := Analyze(s, w)
	require.NoError(t, err)
	second, err := Analyze(s, w)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPercentChange_JSON(t *testing.T) {
	data, err := json.Marshal(Percent(-12.5))
	require.NoError(t, err)
	assert.Equal(t, "-12.5", string(data))

	var p PercentChange
	require.NoError(t, json.Unmarshal([]byte(`"undefined_baseline"`), &p))
	assert.False(t, p.Defined())

	require.NoError(t, json.Unmarshal([]byte(`25`), &p))
	v, ok := p.Value()
	assert.True(t, ok)
	assert.Equal(t, 25.0, v)

	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &p))
}

func TestBucket_JSON(t *testing.T) {
	data, err := json.Marshal(Bucket{Start: date("2024-06-02"), End: date("2024-06-08"), Total: 7})
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"2024-06-02","end":"2024-06-08","total":7}`, string(data))

	var back Bucket
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, Bucket{Start: date("2024-06-02"), End: date("2024-06-08"), Total: 7}, back)

	assert.Error(t, json.Unmarshal([]byte(`{"start":"June 2","end":"2024-06-08"}`), &back))
}

func TestSeries(t *testing.T) {
	_, err := NewSeries(map[time.Time]int{date("2024-06-01"): -1})
	assert.ErrorIs(t, err, ErrInvalidSeries)

	_, err = ParseSeries(map[string]int{"06/01/2024": 1})
	assert.ErrorIs(t, err, ErrInvalidSeries)

	loc := time.FixedZone("UTC+9", 9*3600)
	s, err := NewSeries(map[time.Time]int{
		time.Date(2024, 6, 1, 8, 0, 0, 0, loc):  2,
		time.Date(2024, 6, 1, 20, 0, 0, 0, loc): 3,
		date("2024-06-05"):                      1,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 5, s.Count(date("2024-06-01")))
	assert.Equal(t, 0, s.Count(date("2024-06-03")))

	first, last, ok := s.Span()
	require.True(t, ok)
	assert.Equal(t, date("2024-06-01"), first)
	assert.Equal(t, date("2024-06-05"), last)
	assert.True(t, s.Covers(date("2024-06-02"), date("2024-06-05")))
	assert.False(t, s.Covers(date("2024-05-31"), date("2024-06-05")))
	assert.Equal(t, 6, s.Sum(date("2024-06-01"), date("2024-06-05")))

	_, _, ok = Series{}.Span()
	assert.False(t, ok)
}
