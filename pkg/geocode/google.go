package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/healthmap/internal/resilience"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results      []googleResult `json:"results"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message"`
}

type googleResult struct {
	AddressComponents []struct {
		LongName  string   `json:"long_name"`
		ShortName string   `json:"short_name"`
		Types     []string `json:"types"`
	} `json:"address_components"`
	FormattedAddress string `json:"formatted_address"`
}

// GoogleOption configures a GoogleProvider.
type GoogleOption func(*GoogleProvider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) GoogleOption {
	return func(g *GoogleProvider) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit for Google calls.
func WithRateLimit(rps float64) GoogleOption {
	return func(g *GoogleProvider) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p resilience.Policy) GoogleOption {
	return func(g *GoogleProvider) {
		g.policy = p
	}
}

// WithBreaker sets the circuit breaker guarding Google calls.
func WithBreaker(b *resilience.Breaker) GoogleOption {
	return func(g *GoogleProvider) {
		g.breaker = b
	}
}

// GoogleProvider reverse-geocodes via the Google Geocoding API.
type GoogleProvider struct {
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	policy     resilience.Policy
	breaker    *resilience.Breaker
}

// NewGoogleProvider creates a GoogleProvider for the given API key.
func NewGoogleProvider(apiKey string, opts ...GoogleOption) *GoogleProvider {
	g := &GoogleProvider{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
		policy:     resilience.DefaultPolicy("geocode.google"),
		breaker:    resilience.NewBreaker("geocode.google", 5, 30*time.Second),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name implements Provider.
func (g *GoogleProvider) Name() string { return "google" }

// ReverseGeocode implements Provider.
func (g *GoogleProvider) ReverseGeocode(ctx context.Context, lat, lng float64) (*ReverseResult, error) {
	if g.apiKey == "" {
		return nil, eris.New("geocode: google api key not configured")
	}
	// A miss is a healthy answer and must not count against the breaker.
	result, err := resilience.Call(ctx, g.breaker, func(ctx context.Context) (*ReverseResult, error) {
		r, err := resilience.Retry(ctx, g.policy, func(ctx context.Context) (*ReverseResult, error) {
			return g.reverse(ctx, lat, lng)
		})
		if errors.Is(err, ErrNoResult) {
			return nil, nil
		}
		return r, err
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrNoResult
	}
	return result, nil
}

func (g *GoogleProvider) reverse(ctx context.Context, lat, lng float64) (*ReverseResult, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: google rate limit")
	}

	params := url.Values{
		"latlng": {strconv.FormatFloat(lat, 'f', 6, 64) + "," + strconv.FormatFloat(lng, 'f', 6, 64)},
		"key":    {g.apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleGeocodeURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google build request")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, &resilience.StatusError{Service: "google geocode", StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google read body")
	}

	var gr googleGeocodeResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, eris.Wrap(err, "geocode: google parse response")
	}

	switch gr.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, ErrNoResult
	case "OVER_QUERY_LIMIT":
		return nil, &resilience.StatusError{Service: "google geocode", StatusCode: http.StatusTooManyRequests}
	default:
		return nil, eris.Errorf("geocode: google status %s: %s", gr.Status, gr.ErrorMessage)
	}
	if len(gr.Results) == 0 {
		return nil, ErrNoResult
	}

	return googleToResult(gr.Results[0]), nil
}

func googleToResult(r googleResult) *ReverseResult {
	out := &ReverseResult{Address: r.FormattedAddress, Source: "google"}
	var number, route string
	for _, c := range r.AddressComponents {
		for _, t := range c.Types {
			switch t {
			case "street_number":
				number = c.LongName
			case "route":
				route = c.LongName
			case "locality":
				out.City = c.LongName
			case "administrative_area_level_1":
				out.State = c.ShortName
			case "postal_code":
				out.ZipCode = c.LongName
			}
		}
	}
	out.Street = formatAddress(number+" "+route, "", "", "")
	if out.Address == "" {
		out.Address = formatAddress(out.Street, out.City, out.State, out.ZipCode)
	}
	return out
}
