package validate

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/healthmap/internal/geo"
	"github.com/sells-group/healthmap/internal/metrics"
	"github.com/sells-group/healthmap/pkg/geocode"
)

// Status is the validator's position in its state machine:
// Idle -> Validating -> Valid | Invalid.
type Status int

// Validator states.
const (
	StatusIdle Status = iota
	StatusValidating
	StatusValid
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusValidating:
		return "validating"
	case StatusValid:
		return "valid"
	case StatusInvalid:
		return "invalid"
	}
	return "unknown"
}

// MarshalJSON encodes the status as its name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// State is a published snapshot of the latest validation.
type State struct {
	Status Status `json:"status"`
	// Token identifies the Validate call that produced this state.
	Token uint64 `json:"token"`
	// Enriching is true while the address lookup for Token is in flight.
	Enriching bool   `json:"enriching"`
	Result    Result `json:"result"`
}

// Option configures a Validator.
type Option func(*Validator)

// WithGeocoder enables asynchronous address enrichment of valid pins.
func WithGeocoder(gc geocode.Client) Option {
	return func(v *Validator) {
		v.geocoder = gc
	}
}

// WithGeocodeTimeout bounds each enrichment call. Zero leaves the timeout to
// the geocoder.
func WithGeocodeTimeout(d time.Duration) Option {
	return func(v *Validator) {
		v.timeout = d
	}
}

// WithObserver registers fn to receive every published state, in order.
// fn runs with the validator's lock held and must not call back into it.
func WithObserver(fn func(State)) Option {
	return func(v *Validator) {
		v.observer = fn
	}
}

// Validator tracks the latest pin placement. Every Validate call takes a new
// token; an address lookup that finishes after a newer call has started is
// discarded instead of overwriting the newer state.
type Validator struct {
	locator  Locator
	geocoder geocode.Client
	timeout  time.Duration
	observer func(State)

	token atomic.Uint64
	wg    sync.WaitGroup

	mu    sync.Mutex
	state State
}

// New creates an idle Validator.
func New(locator Locator, opts ...Option) *Validator {
	v := &Validator{locator: locator}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks p and publishes the decision. For a valid pin with a
// geocoder configured, the address lookup continues in the background and
// its result is published later if p is still the latest pin. The returned
// Result never carries an address.
func (v *Validator) Validate(ctx context.Context, p geo.GeoPoint) (Result, error) {
	token := v.token.Add(1)
	v.publish(token, State{Status: StatusValidating, Token: token, Result: Result{Point: p}})

	r, err := Check(v.locator, p)
	if err != nil {
		v.publish(token, State{Status: StatusIdle, Token: token})
		return Result{}, err
	}
	if !r.Valid {
		v.publish(token, State{Status: StatusInvalid, Token: token, Result: r})
		return r, nil
	}

	enrich := v.geocoder != nil
	v.publish(token, State{Status: StatusValid, Token: token, Enriching: enrich, Result: r})
	if enrich {
		v.wg.Add(1)
		go v.enrich(context.WithoutCancel(ctx), token, r)
	}
	return r, nil
}

func (v *Validator) enrich(ctx context.Context, token uint64, r Result) {
	defer v.wg.Done()

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	enriched := Enrich(ctx, v.geocoder, r)
	if !v.publish(token, State{Status: StatusValid, Token: token, Result: enriched}) {
		metrics.GeocodeResultsTotal.WithLabelValues("stale").Inc()
		zap.L().Debug("discarding stale address lookup",
			zap.String("component", "validate"),
			zap.Uint64("token", token),
			zap.Uint64("latest", v.token.Load()),
		)
	}
}

// publish installs s if token is still the latest. It reports whether s was
// installed.
func (v *Validator) publish(token uint64, s State) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if token != v.token.Load() {
		return false
	}
	v.state = s
	if v.observer != nil {
		v.observer(s)
	}
	return true
}

// Current returns the latest published state.
func (v *Validator) Current() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Reset returns the validator to Idle and discards any in-flight lookup.
func (v *Validator) Reset() {
	token := v.token.Add(1)
	v.publish(token, State{Status: StatusIdle, Token: token})
}

// Wait blocks until all background address lookups have finished.
func (v *Validator) Wait() {
	v.wg.Wait()
}
