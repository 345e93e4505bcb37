package geocode

import (
	"net/http"
	"net/url"

	"golang.org/x/time/rate"
)

func unlimited() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

// redirectTo returns a client that sends every request to target, keeping
// the original path and query.
func redirectTo(target string) *http.Client {
	u, err := url.Parse(target)
	if err != nil {
		panic(err)
	}
	return &http.Client{Transport: redirectTransport{target: u}}
}

type redirectTransport struct {
	target *url.URL
}

func (t redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = t.target.Scheme
	out.URL.Host = t.target.Host
	out.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(out)
}
