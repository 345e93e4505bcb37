// Package validate decides whether a candidate pin lies inside a known
// region and enriches valid pins with a best-effort reverse-geocoded address.
package validate

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/healthmap/internal/geo"
	"github.com/sells-group/healthmap/internal/metrics"
	"github.com/sells-group/healthmap/pkg/geocode"
)

// Reason explains why a pin is not valid.
type Reason string

// Reasons.
const (
	ReasonOutOfBounds Reason = "out_of_bounds"
)

// Locator answers which region contains a point. *geo.Index implements it.
type Locator interface {
	Contains(p geo.GeoPoint) (string, bool)
}

// Result is the outcome of validating one pin.
type Result struct {
	Point      geo.GeoPoint `json:"point"`
	Valid      bool         `json:"valid"`
	RegionName string       `json:"region_name,omitempty"`
	Address    string       `json:"address,omitempty"`
	Reason     Reason       `json:"reason,omitempty"`
}

// Check is the synchronous decision step. An out-of-bounds pin is a normal
// result; only a malformed coordinate is an error.
func Check(locator Locator, p geo.GeoPoint) (Result, error) {
	if err := p.Validate(); err != nil {
		metrics.ValidationsTotal.WithLabelValues("invalid_input").Inc()
		return Result{}, err
	}

	name, ok := locator.Contains(p)
	if !ok {
		metrics.ValidationsTotal.WithLabelValues(string(ReasonOutOfBounds)).Inc()
		return Result{Point: p, Valid: false, Reason: ReasonOutOfBounds}, nil
	}
	metrics.ValidationsTotal.WithLabelValues("valid").Inc()
	return Result{Point: p, Valid: true, RegionName: name}, nil
}

// Enrich attaches a reverse-geocoded address to a valid result. Geocoder
// failures are logged and leave the address empty; they are never returned.
func Enrich(ctx context.Context, gc geocode.Client, r Result) Result {
	if !r.Valid || gc == nil {
		return r
	}

	start := time.Now()
	addr, err := gc.ReverseGeocode(ctx, r.Point.Lat, r.Point.Lng)
	metrics.GeocodeDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.GeocodeResultsTotal.WithLabelValues("unavailable").Inc()
		level := zap.WarnLevel
		if errors.Is(err, geocode.ErrNoResult) {
			level = zap.DebugLevel
		}
		if ce := zap.L().Check(level, "reverse geocode unavailable"); ce != nil {
			ce.Write(
				zap.String("component", "validate"),
				zap.Float64("lat", r.Point.Lat),
				zap.Float64("lng", r.Point.Lng),
				zap.Error(err),
			)
		}
		return r
	}

	metrics.GeocodeResultsTotal.WithLabelValues("ok").Inc()
	r.Address = addr.Address
	return r
}
