package geocode

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/healthmap/internal/db"
)

// TigerProvider reverse-geocodes via the PostGIS TIGER geocoder extension.
type TigerProvider struct {
	pool      db.Pool
	maxRating int
}

// NewTigerProvider creates a TigerProvider. Results rated worse (higher) than
// maxRating are treated as no result; maxRating <= 0 accepts everything.
func NewTigerProvider(pool db.Pool, maxRating int) *TigerProvider {
	return &TigerProvider{pool: pool, maxRating: maxRating}
}

// Name implements Provider.
func (p *TigerProvider) Name() string { return "tiger" }

// ReverseGeocode implements Provider.
func (p *TigerProvider) ReverseGeocode(ctx context.Context, lat, lng float64) (*ReverseResult, error) {
	var full, city, state, zip, countyFIPS sql.NullString
	var rating int

	err := p.pool.QueryRow(ctx, `
		SELECT
			pprint_addy(addy),
			(addy).location,
			(addy).stateusps,
			(addy).zip,
			(addy).statefp || (addy).countyfp,
			rating
		FROM reverse_geocode(ST_SetSRID(ST_MakePoint($1, $2), 4326), 1)`,
		lng, lat,
	).Scan(&full, &city, &state, &zip, &countyFIPS, &rating)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoResult
	}
	if err != nil {
		zap.L().Debug("tiger reverse geocode failed",
			zap.Float64("lat", lat),
			zap.Float64("lng", lng),
			zap.Error(err),
		)
		return nil, eris.Wrap(err, "geocode: tiger reverse geocode")
	}

	if p.maxRating > 0 && rating > p.maxRating {
		zap.L().Debug("tiger reverse geocode: rating exceeds threshold",
			zap.Int("rating", rating),
			zap.Int("max_rating", p.maxRating),
		)
		return nil, ErrNoResult
	}

	result := &ReverseResult{
		Address:    full.String,
		City:       city.String,
		State:      state.String,
		ZipCode:    zip.String,
		CountyFIPS: countyFIPS.String,
		Rating:     rating,
		Source:     "tiger",
	}
	// pprint_addy is empty when only the place matched.
	if result.Address == "" {
		result.Address = formatAddress("", result.City, result.State, result.ZipCode)
	}
	if result.Address == "" {
		return nil, ErrNoResult
	}
	return result, nil
}
