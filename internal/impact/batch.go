package impact

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// SeriesSource loads daily counts for a series over an inclusive date range.
// Days without a row count as zero; SeriesSpan reports the first and last
// recorded day of the whole series, and ok is false for an unknown series.
type SeriesSource interface {
	DailyCounts(ctx context.Context, seriesKey string, from, to time.Time) (map[time.Time]int, error)
	SeriesSpan(ctx context.Context, seriesKey string) (first, last time.Time, ok bool, err error)
}

// Intervention is one event to analyze.
type Intervention struct {
	Name        string `yaml:"name" json:"name"`
	SeriesKey   string `yaml:"series_key" json:"series_key"`
	EventDate   string `yaml:"event_date" json:"event_date"`
	BeforeWeeks int    `yaml:"before_weeks,omitempty" json:"before_weeks,omitempty"`
	AfterWeeks  int    `yaml:"after_weeks,omitempty" json:"after_weeks,omitempty"`
}

// Plan is a batch of interventions. Per-intervention week counts override
// the plan defaults.
type Plan struct {
	BeforeWeeks   int            `yaml:"before_weeks"`
	AfterWeeks    int            `yaml:"after_weeks"`
	Interventions []Intervention `yaml:"interventions"`
}

// ParsePlan decodes a YAML plan.
func ParsePlan(data []byte) (Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Plan{}, eris.Wrap(err, "impact: parse plan")
	}
	if len(p.Interventions) == 0 {
		return Plan{}, eris.New("impact: plan has no interventions")
	}
	return p, nil
}

// LoadPlan reads a YAML plan from path.
func LoadPlan(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, eris.Wrapf(err, "impact: read plan %s", path)
	}
	return ParsePlan(data)
}

// window resolves an intervention's window against plan defaults.
func (p Plan) window(iv Intervention) (Window, error) {
	event, err := time.Parse(DateLayout, iv.EventDate)
	if err != nil {
		return Window{}, eris.Wrapf(ErrInvalidWindow, "event date %q", iv.EventDate)
	}
	w := Window{EventDate: event, BeforeWeeks: iv.BeforeWeeks, AfterWeeks: iv.AfterWeeks}
	if w.BeforeWeeks == 0 {
		w.BeforeWeeks = p.BeforeWeeks
	}
	if w.AfterWeeks == 0 {
		w.AfterWeeks = p.AfterWeeks
	}
	return w, w.Validate()
}

// BatchResult is one intervention's outcome. Error is set when the window
// was malformed or the series could not be loaded.
type BatchResult struct {
	Intervention Intervention `json:"intervention"`
	Summary      Summary      `json:"summary"`
	Error        string       `json:"error,omitempty"`
}

// RunBatch analyzes every intervention in plan with at most concurrency
// series loads in flight. Results are in plan order. Per-intervention
// failures are reported in the result; only cancellation of ctx fails the
// batch.
func RunBatch(ctx context.Context, src SeriesSource, plan Plan, concurrency int) ([]BatchResult, error) {
	if concurrency <= 0 {
		concurrency = 4
	}
	log := zap.L().With(zap.String("component", "impact.batch"))

	results := make([]BatchResult, len(plan.Interventions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, iv := range plan.Interventions {
		g.Go(func() error {
			results[i] = runOne(gctx, src, plan, iv)
			if results[i].Error != "" {
				log.Warn("intervention analysis failed",
					zap.String("intervention", iv.Name),
					zap.String("error", results[i].Error),
				)
			}
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "impact: batch")
	}
	return results, nil
}

func runOne(ctx context.Context, src SeriesSource, plan Plan, iv Intervention) BatchResult {
	res := BatchResult{Intervention: iv}

	w, err := plan.window(iv)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.Summary, err = AnalyzeSource(ctx, src, iv.SeriesKey, w)
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// AnalyzeSource loads the window's daily counts for key from src and
// analyzes them against the series' full recorded span, so zero days at the
// window edges are gaps rather than missing coverage.
func AnalyzeSource(ctx context.Context, src SeriesSource, key string, w Window) (Summary, error) {
	if err := w.Validate(); err != nil {
		return Summary{}, err
	}
	first, last, ok, err := src.SeriesSpan(ctx, key)
	if err != nil {
		return Summary{}, eris.Wrapf(err, "impact: series span %s", key)
	}
	if !ok {
		return Analyze(Series{}, w)
	}
	counts, err := src.DailyCounts(ctx, key, w.Start(), w.End())
	if err != nil {
		return Summary{}, eris.Wrapf(err, "impact: load series %s", key)
	}
	series, err := NewSeriesWithSpan(counts, first, last)
	if err != nil {
		return Summary{}, err
	}
	return Analyze(series, w)
}
