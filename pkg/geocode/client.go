// Package geocode reverse-geocodes coordinates to street addresses using
// PostGIS TIGER data (primary) and the Google Geocoding API (fallback), with
// in-memory and Redis result caches.
package geocode

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNoResult is returned when a provider answers but has no address for the point.
var ErrNoResult = eris.New("geocode: no result")

// ErrUnavailable is returned when no provider could answer.
var ErrUnavailable = eris.New("geocode: unavailable")

// Client reverse-geocodes a coordinate.
type Client interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (*ReverseResult, error)
}

// ReverseResult holds the result of a reverse geocode operation.
type ReverseResult struct {
	Address    string `json:"address"`
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	ZipCode    string `json:"zip_code,omitempty"`
	CountyFIPS string `json:"county_fips,omitempty"`
	Rating     int    `json:"rating,omitempty"`
	Source     string `json:"source"`
}

// formatAddress joins the populated address parts as "street, city, state zip".
func formatAddress(street, city, state, zip string) string {
	var parts []string
	if s := strings.TrimSpace(street); s != "" {
		parts = append(parts, s)
	}
	if c := strings.TrimSpace(city); c != "" {
		parts = append(parts, c)
	}
	stateZip := strings.TrimSpace(fmt.Sprintf("%s %s", strings.TrimSpace(state), strings.TrimSpace(zip)))
	if stateZip != "" {
		parts = append(parts, stateZip)
	}
	return strings.Join(parts, ", ")
}
