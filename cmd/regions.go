package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/healthmap/internal/db"
	"github.com/sells-group/healthmap/internal/geo"
	"github.com/sells-group/healthmap/internal/validate"
)

var (
	containsLat float64
	containsLng float64
)

// boundaryIndex loads the index, opening the store only when the boundary
// source needs the Postgres pool.
func boundaryIndex(cmd *cobra.Command) (*geo.Index, func(), error) {
	if err := cfg.Validate("boundary"); err != nil {
		return nil, nil, err
	}
	ctx := cmd.Context()

	var pool db.Pool
	closeFn := func() {}
	if cfg.Boundary.Source == "postgis" {
		st, p, err := openStore(ctx)
		if err != nil {
			return nil, nil, err
		}
		pool = p
		closeFn = func() { _ = st.Close() }
	}

	idx, _, err := loadIndex(ctx, pool)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return idx, closeFn, nil
}

type regionSummary struct {
	Name     string       `json:"name"`
	Centroid geo.GeoPoint `json:"centroid"`
	Bounds   geo.BBox     `json:"bounds"`
}

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "List loaded regions with centroids and bounds",
	RunE: func(cmd *cobra.Command, _ []string) error {
		idx, done, err := boundaryIndex(cmd)
		if err != nil {
			return err
		}
		defer done()

		var out []regionSummary
		for _, name := range idx.Names() {
			c, _ := idx.Centroid(name)
			b, _ := idx.BBox(name)
			out = append(out, regionSummary{Name: name, Centroid: c, Bounds: b})
		}
		return printJSON(cmd, out)
	},
}

var containsCmd = &cobra.Command{
	Use:   "contains",
	Short: "Report which region contains a coordinate",
	RunE: func(cmd *cobra.Command, _ []string) error {
		idx, done, err := boundaryIndex(cmd)
		if err != nil {
			return err
		}
		defer done()

		res, err := validate.Check(idx, geo.GeoPoint{Lat: containsLat, Lng: containsLng})
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var centroidCmd = &cobra.Command{
	Use:   "centroid NAME",
	Short: "Print a region's centroid and map focus",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, done, err := boundaryIndex(cmd)
		if err != nil {
			return err
		}
		defer done()

		f, err := idx.FocusRegion(args[0])
		if err != nil {
			return eris.Wrapf(err, "centroid %s", args[0])
		}
		return printJSON(cmd, f)
	},
}

func init() {
	containsCmd.Flags().Float64Var(&containsLat, "lat", 0, "latitude (required)")
	containsCmd.Flags().Float64Var(&containsLng, "lng", 0, "longitude (required)")
	_ = containsCmd.MarkFlagRequired("lat")
	_ = containsCmd.MarkFlagRequired("lng")

	rootCmd.AddCommand(regionsCmd, containsCmd, centroidCmd)
}
