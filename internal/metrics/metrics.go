// Package metrics exposes Prometheus collectors for validation, geocoding,
// proximity ranking, impact analysis, boundary loads, and the HTTP API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ValidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "healthmap_validations_total",
		Help: "Location validations by outcome (valid, out_of_bounds, invalid_input)",
	}, []string{"outcome"})
	GeocodeResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "healthmap_geocode_results_total",
		Help: "Reverse geocode enrichments by outcome (ok, unavailable, stale)",
	}, []string{"outcome"})
	GeocodeDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "healthmap_geocode_duration_ms",
		Help:    "Reverse geocode call duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
	})
	ProximityQueriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "healthmap_proximity_queries_total",
		Help: "Total proximity ranker queries",
	})
	ProximityResults = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "healthmap_proximity_results",
		Help:    "Number of records returned per proximity query",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
	})
	ImpactAnalysesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "healthmap_impact_analyses_total",
		Help: "Impact analyses by status and trend",
	}, []string{"status", "trend"})
	BoundaryRegions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "healthmap_boundary_regions",
		Help: "Regions in the active boundary index",
	})
	BoundarySkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "healthmap_boundary_skipped_total",
		Help: "Regions skipped during boundary loads",
	})
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "healthmap_http_requests_total",
		Help: "HTTP API requests by route and status code",
	}, []string{"route", "code"})
	HTTPDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "healthmap_http_duration_ms",
		Help:    "HTTP API request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"route"})
)

func init() {
	prometheus.MustRegister(
		ValidationsTotal,
		GeocodeResultsTotal,
		GeocodeDurationMs,
		ProximityQueriesTotal,
		ProximityResults,
		ImpactAnalysesTotal,
		BoundaryRegions,
		BoundarySkippedTotal,
		HTTPRequestsTotal,
		HTTPDurationMs,
	)
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
