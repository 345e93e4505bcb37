package geocode

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Provider represents a single reverse geocoding backend.
type Provider interface {
	Name() string
	ReverseGeocode(ctx context.Context, lat, lng float64) (*ReverseResult, error)
}

// CascadeClient tries reverse geocode providers in order until one answers.
type CascadeClient struct {
	providers []Provider
}

// NewCascadeClient creates a CascadeClient that tries providers in order.
func NewCascadeClient(providers ...Provider) *CascadeClient {
	return &CascadeClient{providers: providers}
}

// ReverseGeocode implements Client. ErrNoResult is returned only when every
// provider answered without an address; any provider failure otherwise turns
// an all-miss into ErrUnavailable.
func (c *CascadeClient) ReverseGeocode(ctx context.Context, lat, lng float64) (*ReverseResult, error) {
	if len(c.providers) == 0 {
		return nil, eris.Wrap(ErrUnavailable, "no providers configured")
	}

	var lastErr error
	for _, p := range c.providers {
		result, err := p.ReverseGeocode(ctx, lat, lng)
		if err == nil && result != nil {
			return result, nil
		}
		if err != nil && !errors.Is(err, ErrNoResult) {
			zap.L().Debug("cascade: provider error, trying next",
				zap.String("provider", p.Name()),
				zap.Error(err),
			)
			lastErr = err
		}
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "geocode: cascade")
		}
	}

	if lastErr != nil {
		return nil, eris.Wrapf(ErrUnavailable, "last error: %v", lastErr)
	}
	return nil, ErrNoResult
}
