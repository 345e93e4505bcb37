package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/healthmap/internal/impact"
)

var (
	impactSeries      string
	impactEvent       string
	impactBefore      int
	impactAfter       int
	impactPlan        string
	impactXLSX        string
	impactConcurrency int
)

var impactCmd = &cobra.Command{
	Use:   "impact",
	Short: "Compare weekly case counts before and after an intervention",
	Long: `Analyzes one series (--series, --event) or every intervention in a YAML plan
(--plan). Batch results can also be written to a chart-ready XLSX workbook.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		if (impactPlan == "") == (impactSeries == "") {
			return eris.New("exactly one of --plan or --series is required")
		}
		ctx := cmd.Context()

		st, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if impactSeries != "" {
			event, err := time.Parse(impact.DateLayout, impactEvent)
			if err != nil {
				return eris.Wrap(err, "impact: --event must be YYYY-MM-DD")
			}
			w := impact.Window{EventDate: event, BeforeWeeks: cfg.Impact.BeforeWeeks, AfterWeeks: cfg.Impact.AfterWeeks}
			if impactBefore > 0 {
				w.BeforeWeeks = impactBefore
			}
			if impactAfter > 0 {
				w.AfterWeeks = impactAfter
			}
			sum, err := impact.AnalyzeSource(ctx, st, impactSeries, w)
			if err != nil {
				return err
			}
			return printJSON(cmd, sum)
		}

		plan, err := impact.LoadPlan(impactPlan)
		if err != nil {
			return err
		}
		if plan.BeforeWeeks == 0 {
			plan.BeforeWeeks = cfg.Impact.BeforeWeeks
		}
		if plan.AfterWeeks == 0 {
			plan.AfterWeeks = cfg.Impact.AfterWeeks
		}

		concurrency := cfg.Impact.Concurrency
		if impactConcurrency > 0 {
			concurrency = impactConcurrency
		}
		results, err := impact.RunBatch(ctx, st, plan, concurrency)
		if err != nil {
			return err
		}

		if impactXLSX != "" {
			if err := impact.WriteXLSX(impactXLSX, results); err != nil {
				return err
			}
			zap.L().Info("impact workbook written", zap.String("path", impactXLSX), zap.Int("interventions", len(results)))
		}
		return printJSON(cmd, results)
	},
}

func init() {
	f := impactCmd.Flags()
	f.StringVar(&impactSeries, "series", "", "series key to analyze")
	f.StringVar(&impactEvent, "event", "", "intervention date (YYYY-MM-DD)")
	f.IntVar(&impactBefore, "before", 0, "weeks before the event (default from config)")
	f.IntVar(&impactAfter, "after", 0, "weeks after the event (default from config)")
	f.StringVar(&impactPlan, "plan", "", "YAML intervention plan for batch analysis")
	f.StringVar(&impactXLSX, "xlsx", "", "write batch results to this XLSX file")
	f.IntVar(&impactConcurrency, "concurrency", 0, "concurrent series loads (default from config)")
	rootCmd.AddCommand(impactCmd)
}
