package main

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/healthmap/internal/db"
	"github.com/sells-group/healthmap/internal/geo"
	"github.com/sells-group/healthmap/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate LAT,LNG [LAT,LNG...]",
	Short: "Validate pins in order, printing each state change",
	Long: `Validates each pin in turn the way a map client does while the user drags a
marker: every new pin supersedes the previous one, and an address lookup that
finishes after a newer pin was placed is discarded. Each published state is
printed as a JSON line.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		points := make([]geo.GeoPoint, len(args))
		for i, a := range args {
			p, err := parsePoint(a)
			if err != nil {
				return err
			}
			points[i] = p
		}

		ctx := cmd.Context()
		if err := cfg.Validate("boundary"); err != nil {
			return err
		}

		var pool db.Pool
		if cfg.Boundary.Source == "postgis" || len(cfg.Geocode.Providers) > 0 {
			st, p, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			pool = p
		}

		idx, _, err := loadIndex(ctx, pool)
		if err != nil {
			return err
		}
		gc, closeGeocoder, err := buildGeocoder(pool)
		if err != nil {
			return err
		}
		defer closeGeocoder()

		enc := jsonLines(cmd)
		opts := []validate.Option{
			validate.WithGeocodeTimeout(cfg.Geocode.Timeout),
			validate.WithObserver(func(s validate.State) { _ = enc.Encode(s) }),
		}
		if gc != nil {
			opts = append(opts, validate.WithGeocoder(gc))
		}
		v := validate.New(idx, opts...)

		for _, p := range points {
			if _, err := v.Validate(ctx, p); err != nil {
				return err
			}
		}
		v.Wait()
		return nil
	},
}

// parsePoint parses "lat,lng".
func parsePoint(s string) (geo.GeoPoint, error) {
	latStr, lngStr, ok := strings.Cut(s, ",")
	if !ok {
		return geo.GeoPoint{}, eris.Errorf("point %q must be LAT,LNG", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return geo.GeoPoint{}, eris.Wrapf(err, "point %q latitude", s)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil {
		return geo.GeoPoint{}, eris.Wrapf(err, "point %q longitude", s)
	}
	return geo.GeoPoint{Lat: lat, Lng: lng}, nil
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
