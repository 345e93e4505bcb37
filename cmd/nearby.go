package main

import (
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/sells-group/healthmap/internal/geo"
	"github.com/sells-group/healthmap/internal/proximity"
	"github.com/sells-group/healthmap/internal/store"
)

var (
	nearbyLat        float64
	nearbyLng        float64
	nearbyRadius     float64
	nearbyTopK       int
	nearbyCategories []string
	nearbyRegion     string
	nearbyStatus     string
	nearbySinceDays  int
)

var nearbyCmd = &cobra.Command{
	Use:   "nearby",
	Short: "Rank stored reports by distance from a point",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		ctx := cmd.Context()

		q := proximity.Query{
			Origin:   geo.GeoPoint{Lat: nearbyLat, Lng: nearbyLng},
			RadiusKM: cfg.Proximity.RadiusKM,
			TopK:     cfg.Proximity.TopK,
		}
		if cmd.Flags().Changed("radius") {
			q.RadiusKM = nearbyRadius
		}
		if cmd.Flags().Changed("top-k") {
			q.TopK = nearbyTopK
		}
		if len(nearbyCategories) > 0 {
			q.Predicate = func(r proximity.Record) bool {
				rep, ok := r.Payload.(store.Report)
				return ok && lo.Contains(nearbyCategories, rep.Category)
			}
		}
		if err := q.Validate(); err != nil {
			return err
		}

		st, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		bounds := geo.BoundsAround(q.Origin, q.RadiusKM)
		filter := store.ReportFilter{Bounds: &bounds, Region: nearbyRegion, Status: nearbyStatus}
		if nearbySinceDays > 0 {
			filter.Since = time.Now().AddDate(0, 0, -nearbySinceDays)
		}
		reports, err := store.AllReports(ctx, st, filter)
		if err != nil {
			return err
		}

		ranked, err := proximity.Rank(q, store.Records(reports))
		if err != nil {
			return err
		}
		return printJSON(cmd, ranked)
	},
}

func init() {
	f := nearbyCmd.Flags()
	f.Float64Var(&nearbyLat, "lat", 0, "origin latitude (required)")
	f.Float64Var(&nearbyLng, "lng", 0, "origin longitude (required)")
	f.Float64Var(&nearbyRadius, "radius", 0, "search radius in km (default from config)")
	f.IntVar(&nearbyTopK, "top-k", 0, "maximum results (default from config)")
	f.StringSliceVar(&nearbyCategories, "category", nil, "only these report categories")
	f.StringVar(&nearbyRegion, "region", "", "only reports in this region")
	f.StringVar(&nearbyStatus, "status", "", "only reports with this status")
	f.IntVar(&nearbySinceDays, "since-days", 0, "only reports from the last N days")
	_ = nearbyCmd.MarkFlagRequired("lat")
	_ = nearbyCmd.MarkFlagRequired("lng")
	rootCmd.AddCommand(nearbyCmd)
}
