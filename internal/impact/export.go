package impact

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// WriteXLSX writes batch results to path as a "Summary" sheet (one row per
// intervention) and a "Buckets" sheet (one row per weekly bucket).
func WriteXLSX(path string, results []BatchResult) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "impact: add summary sheet")
	}
	addStrings(summary.AddRow(), "intervention", "series_key", "event_date", "status",
		"total_before", "total_after", "percent_change", "trend", "error")

	buckets, err := f.AddSheet("Buckets")
	if err != nil {
		return eris.Wrap(err, "impact: add buckets sheet")
	}
	addStrings(buckets.AddRow(), "intervention", "side", "week", "start", "end", "total")

	for _, r := range results {
		row := summary.AddRow()
		addStrings(row, r.Intervention.Name, r.Intervention.SeriesKey, r.Intervention.EventDate, string(r.Summary.Status))
		row.AddCell().SetInt(r.Summary.TotalBefore)
		row.AddCell().SetInt(r.Summary.TotalAfter)
		if v, ok := r.Summary.PercentChange.Value(); ok {
			row.AddCell().SetFloat(v)
		} else {
			row.AddCell().SetString(undefinedBaselineJSON)
		}
		addStrings(row, string(r.Summary.Trend), r.Error)

		writeBuckets(buckets, r.Intervention.Name, "before", r.Summary.BeforeBuckets)
		writeBuckets(buckets, r.Intervention.Name, "after", r.Summary.AfterBuckets)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "impact: save %s", path)
	}
	return nil
}

func writeBuckets(sheet *xlsx.Sheet, name, side string, bs []Bucket) {
	for i, b := range bs {
		row := sheet.AddRow()
		addStrings(row, name, side)
		row.AddCell().SetInt(i + 1)
		addStrings(row, b.Start.Format(DateLayout), b.End.Format(DateLayout))
		row.AddCell().SetInt(b.Total)
	}
}

func addStrings(row *xlsx.Row, values ...string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
