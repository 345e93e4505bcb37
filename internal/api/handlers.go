package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/sells-group/healthmap/internal/geo"
	"github.com/sells-group/healthmap/internal/impact"
	"github.com/sells-group/healthmap/internal/proximity"
	"github.com/sells-group/healthmap/internal/store"
	"github.com/sells-group/healthmap/internal/validate"
)

type validateRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(w, http.StatusBadRequest, "lat and lng are required")
		return
	}

	res, err := validate.Check(s.index, geo.GeoPoint{Lat: *req.Lat, Lng: *req.Lng})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if res.Valid && s.geocoder != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.geocodeTimeout)
		res = validate.Enrich(ctx, s.geocoder, res)
		cancel()
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRegions(w http.ResponseWriter, _ *http.Request) {
	names := s.index.Names()
	writeJSON(w, http.StatusOK, map[string]any{
		"regions": names,
		"count":   len(names),
	})
}

func (s *Server) handleCentroid(w http.ResponseWriter, r *http.Request) {
	name := regionParam(r)
	c, ok := s.index.Centroid(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown region: "+name)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"region":   name,
		"centroid": c,
	})
}

func (s *Server) handleRegionFocus(w http.ResponseWriter, r *http.Request) {
	f, err := s.index.FocusRegion(regionParam(r))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handlePointFocus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(w, http.StatusBadRequest, "lat and lng must be numbers")
		return
	}
	zoom := 0
	if z := q.Get("zoom"); z != "" {
		var err error
		if zoom, err = strconv.Atoi(z); err != nil {
			writeError(w, http.StatusBadRequest, "zoom must be an integer")
			return
		}
	}

	f, err := geo.FocusPoint(geo.GeoPoint{Lat: lat, Lng: lng}, zoom)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func regionParam(r *http.Request) string {
	name := chi.URLParam(r, "name")
	if u, err := url.PathUnescape(name); err == nil {
		return u
	}
	return name
}

type nearbyRequest struct {
	Origin     *geo.GeoPoint `json:"origin"`
	RadiusKM   *float64      `json:"radius_km"`
	TopK       *int          `json:"top_k"`
	Region     string        `json:"region"`
	Status     string        `json:"status"`
	Categories []string      `json:"categories"`
	Since      time.Time     `json:"since"`
}

type nearbyResult struct {
	Report     store.Report `json:"report"`
	DistanceKM float64      `json:"distance_km"`
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "report store not configured")
		return
	}

	var req nearbyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Origin == nil {
		writeError(w, http.StatusBadRequest, "origin is required")
		return
	}

	q := proximity.Query{
		Origin:   *req.Origin,
		RadiusKM: s.defaultRadius,
		TopK:     s.defaultTopK,
	}
	if req.RadiusKM != nil {
		q.RadiusKM = *req.RadiusKM
	}
	if req.TopK != nil {
		q.TopK = *req.TopK
	}
	if len(req.Categories) > 0 {
		q.Predicate = func(rec proximity.Record) bool {
			rep, ok := rec.Payload.(store.Report)
			return ok && lo.Contains(req.Categories, rep.Category)
		}
	}
	if err := q.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bounds := geo.BoundsAround(q.Origin, q.RadiusKM)
	reports, err := store.AllReports(r.Context(), s.store, store.ReportFilter{
		Bounds: &bounds,
		Region: req.Region,
		Status: req.Status,
		Since:  req.Since,
	})
	if err != nil {
		zap.L().Error("list reports", zap.String("component", "api"), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load reports")
		return
	}

	ranked, err := proximity.Rank(q, store.Records(reports))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results := lo.Map(ranked, func(rk proximity.Ranked, _ int) nearbyResult {
		rep, _ := rk.Record.Payload.(store.Report)
		return nearbyResult{Report: rep, DistanceKM: rk.DistanceKM}
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

type impactRequest struct {
	SeriesKey   string `json:"series_key"`
	EventDate   string `json:"event_date"`
	BeforeWeeks int    `json:"before_weeks"`
	AfterWeeks  int    `json:"after_weeks"`
}

func (s *Server) handleImpact(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "report store not configured")
		return
	}

	var req impactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SeriesKey == "" {
		writeError(w, http.StatusBadRequest, "series_key is required")
		return
	}
	event, err := time.Parse(impact.DateLayout, req.EventDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "event_date must be YYYY-MM-DD")
		return
	}

	win := impact.Window{EventDate: event, BeforeWeeks: req.BeforeWeeks, AfterWeeks: req.AfterWeeks}
	sum, err := impact.AnalyzeSource(r.Context(), s.store, req.SeriesKey, win)
	switch {
	case eris.Is(err, impact.ErrInvalidWindow), eris.Is(err, impact.ErrInvalidSeries):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		zap.L().Error("impact analysis", zap.String("component", "api"), zap.String("series_key", req.SeriesKey), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load series")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
