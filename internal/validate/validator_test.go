package validate

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/healthmap/internal/geo"
	"github.com/sells-group/healthmap/pkg/geocode"
)

func alphaIndex() *geo.Index {
	idx := geo.NewIndex()
	idx.Load([]geo.Region{{Name: "Alpha", Polygons: []geo.Polygon{{{
		{Lng: 0, Lat: 0}, {Lng: 1, Lat: 0}, {Lng: 1, Lat: 1}, {Lng: 0, Lat: 1}, {Lng: 0, Lat: 0},
	}}}}})
	return idx
}

// gatedGeocoder blocks each lookup until its point's gate is closed.
type gatedGeocoder struct {
	mu      sync.Mutex
	gates   map[float64]chan struct{}
	started chan float64
	err     error
}

func newGatedGeocoder() *gatedGeocoder {
	return &gatedGeocoder{gates: map[float64]chan struct{}{}, started: make(chan float64, 10)}
}

func (g *gatedGeocoder) gate(lat float64) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[lat]
	if !ok {
		ch = make(chan struct{})
		g.gates[lat] = ch
	}
	return ch
}

func (g *gatedGeocoder) ReverseGeocode(_ context.Context, lat, _ float64) (*geocode.ReverseResult, error) {
	g.started <- lat
	<-g.gate(lat)
	if g.err != nil {
		return nil, g.err
	}
	return &geocode.ReverseResult{Address: addressFor(lat), Source: "stub"}, nil
}

func addressFor(lat float64) string {
	if lat < 0.5 {
		return "south street"
	}
	return "north street"
}

type instantGeocoder struct{ err error }

func (g instantGeocoder) ReverseGeocode(_ context.Context, lat, _ float64) (*geocode.ReverseResult, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &geocode.ReverseResult{Address: addressFor(lat)}, nil
}

func TestCheck(t *testing.T) {
	idx := alphaIndex()

	r, err := Check(idx, geo.GeoPoint{Lat: 0.5, Lng: 0.5})
	require.NoError(t, err)
	assert.True(t, r.Valid)
	assert.Equal(t, "Alpha", r.RegionName)
	assert.Empty(t, r.Reason)

	r, err = Check(idx, geo.GeoPoint{Lat: 2, Lng: 2})
	require.NoError(t, err)
	assert.False(t, r.Valid)
	assert.Equal(t, ReasonOutOfBounds, r.Reason)
	assert.Empty(t, r.RegionName)

	_, err = Check(idx, geo.GeoPoint{Lat: math.NaN(), Lng: 0})
	assert.ErrorIs(t, err, geo.ErrInvalidPoint)
}

func TestEnrich(t *testing.T) {
	valid := Result{Point: geo.GeoPoint{Lat: 0.8, Lng: 0.5}, Valid: true, RegionName: "Alpha"}

	r := Enrich(context.Background(), instantGeocoder{}, valid)
	assert.Equal(t, "north street", r.Address)

	r = Enrich(context.Background(), instantGeocoder{err: errors.New("down")}, valid)
	assert.Empty(t, r.Address)
	assert.True(t, r.Valid)

	r = Enrich(context.Background(), instantGeocoder{}, Result{Valid: false, Reason: ReasonOutOfBounds})
	assert.Empty(t, r.Address)

	r = Enrich(context.Background(), nil, valid)
	assert.Empty(t, r.Address)
}

func TestValidator_OutOfBounds(t *testing.T) {
	v := New(alphaIndex(), WithGeocoder(instantGeocoder{}))
	assert.Equal(t, StatusIdle, v.Current().Status)

	r, err := v.Validate(context.Background(), geo.GeoPoint{Lat: 2, Lng: 2})
	require.NoError(t, err)
	assert.False(t, r.Valid)
	v.Wait()

	s := v.Current()
	assert.Equal(t, StatusInvalid, s.Status)
	assert.Equal(t, ReasonOutOfBounds, s.Result.Reason)
	assert.False(t, s.Enriching)
}

func TestValidator_EnrichesAsynchronously(t *testing.T) {
	var seen []State
	v := New(alphaIndex(),
		WithGeocoder(instantGeocoder{}),
		WithObserver(func(s State) { seen = append(seen, s) }),
	)

	r, err := v.Validate(context.Background(), geo.GeoPoint{Lat: 0.8, Lng: 0.5})
	require.NoError(t, err)
	assert.True(t, r.Valid)
	assert.Empty(t, r.Address, "synchronous result has no address")
	v.Wait()

	s := v.Current()
	assert.Equal(t, StatusValid, s.Status)
	assert.Equal(t, "north street", s.Result.Address)
	assert.False(t, s.Enriching)

	require.Len(t, seen, 3)
	assert.Equal(t, StatusValidating, seen[0].Status)
	assert.Equal(t, StatusValid, seen[1].Status)
	assert.True(t, seen[1].Enriching)
	assert.Equal(t, "north street", seen[2].Result.Address)
}

func TestValidator_GeocodeFailureNotSurfaced(t *testing.T) {
	v := New(alphaIndex(), WithGeocoder(instantGeocoder{err: geocode.ErrUnavailable}))

	r, err := v.Validate(context.Background(), geo.GeoPoint{Lat: 0.8, Lng: 0.5})
	require.NoError(t, err)
	assert.True(t, r.Valid)
	v.Wait()

	s := v.Current()
	assert.Equal(t, StatusValid, s.Status)
	assert.Equal(t, "Alpha", s.Result.RegionName)
	assert.Empty(t, s.Result.Address)
	assert.False(t, s.Enriching)
}

func TestValidator_StaleLookupDiscarded(t *testing.T) {
	gc := newGatedGeocoder()
	v := New(alphaIndex(), WithGeocoder(gc))
	ctx := context.Background()

	_, err := v.Validate(ctx, geo.GeoPoint{Lat: 0.2, Lng: 0.5})
	require.NoError(t, err)
	require.Equal(t, 0.2, <-gc.started)

	_, err = v.Validate(ctx, geo.GeoPoint{Lat: 0.8, Lng: 0.5})
	require.NoError(t, err)
	require.Equal(t, 0.8, <-gc.started)

	// Newest lookup finishes first, then the stale one.
	close(gc.gate(0.8))
	close(gc.gate(0.2))
	v.Wait()

	s := v.Current()
	assert.Equal(t, uint64(2), s.Token)
	assert.Equal(t, 0.8, s.Result.Point.Lat)
	assert.Equal(t, "north street", s.Result.Address)
}

func TestValidator_StaleLookupAfterInvalidPin(t *testing.T) {
	gc := newGatedGeocoder()
	v := New(alphaIndex(), WithGeocoder(gc))
	ctx := context.Background()

	_, err := v.Validate(ctx, geo.GeoPoint{Lat: 0.2, Lng: 0.5})
	require.NoError(t, err)
	<-gc.started

	_, err = v.Validate(ctx, geo.GeoPoint{Lat: 5, Lng: 5})
	require.NoError(t, err)

	close(gc.gate(0.2))
	v.Wait()

	s := v.Current()
	assert.Equal(t, StatusInvalid, s.Status)
	assert.Empty(t, s.Result.Address)
}

func TestValidator_ResetDiscardsInFlight(t *testing.T) {
	gc := newGatedGeocoder()
	v := New(alphaIndex(), WithGeocoder(gc))

	_, err := v.Validate(context.Background(), geo.GeoPoint{Lat: 0.2, Lng: 0.5})
	require.NoError(t, err)
	<-gc.started

	v.Reset()
	close(gc.gate(0.2))
	v.Wait()

	assert.Equal(t, StatusIdle, v.Current().Status)
}

func TestValidator_InvalidInput(t *testing.T) {
	v := New(alphaIndex())
	_, err := v.Validate(context.Background(), geo.GeoPoint{Lat: 91, Lng: 0})
	require.ErrorIs(t, err, geo.ErrInvalidPoint)
	assert.Equal(t, StatusIdle, v.Current().Status)
}

func TestValidator_CallerCancellationDoesNotAbortLookup(t *testing.T) {
	v := New(alphaIndex(), WithGeocoder(instantGeocoder{}))
	ctx, cancel := context.WithCancel(context.Background())

	_, err := v.Validate(ctx, geo.GeoPoint{Lat: 0.8, Lng: 0.5})
	require.NoError(t, err)
	cancel()
	v.Wait()

	assert.Equal(t, "north street", v.Current().Result.Address)
}

func TestStatus_JSON(t *testing.T) {
	b, err := StatusValidating.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"validating"`, string(b))
	assert.Equal(t, "unknown", Status(42).String())
}
