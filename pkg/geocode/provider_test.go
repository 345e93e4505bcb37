package geocode

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name   string
	result *ReverseResult
	err    error
	calls  int
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) ReverseGeocode(context.Context, float64, float64) (*ReverseResult, error) {
	p.calls++
	return p.result, p.err
}

func TestCascade_FirstAnswerWins(t *testing.T) {
	first := &stubProvider{name: "tiger", result: &ReverseResult{Address: "A", Source: "tiger"}}
	second := &stubProvider{name: "google", result: &ReverseResult{Address: "B", Source: "google"}}

	r, err := NewCascadeClient(first, second).ReverseGeocode(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "A", r.Address)
	assert.Equal(t, 0, second.calls)
}

func TestCascade_FallsThrough(t *testing.T) {
	first := &stubProvider{name: "tiger", err: ErrNoResult}
	second := &stubProvider{name: "google", result: &ReverseResult{Address: "B", Source: "google"}}

	r, err := NewCascadeClient(first, second).ReverseGeocode(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "google", r.Source)
	assert.Equal(t, 1, first.calls)
}

func TestCascade_AllMiss(t *testing.T) {
	c := NewCascadeClient(&stubProvider{name: "a", err: ErrNoResult}, &stubProvider{name: "b", err: ErrNoResult})
	_, err := c.ReverseGeocode(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestCascade_FailureIsUnavailable(t *testing.T) {
	c := NewCascadeClient(&stubProvider{name: "a", err: errors.New("timeout")}, &stubProvider{name: "b", err: ErrNoResult})
	_, err := c.ReverseGeocode(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "timeout")
}

func TestCascade_NoProviders(t *testing.T) {
	_, err := NewCascadeClient().ReverseGeocode(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFormatAddress(t *testing.T) {
	assert.Equal(t, "1 Main St, Springfield, IL 62701", formatAddress("1 Main St", "Springfield", "IL", "62701"))
	assert.Equal(t, "Springfield, IL", formatAddress("", "Springfield", "IL", ""))
	assert.Equal(t, "62701", formatAddress(" ", "", "", "62701"))
	assert.Equal(t, "", formatAddress("", "", "", ""))
}
