// Package api serves the health map over HTTP: pin validation, region
// lookups, nearby reports, and intervention impact summaries.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/healthmap/internal/geo"
	"github.com/sells-group/healthmap/internal/metrics"
	"github.com/sells-group/healthmap/internal/store"
	"github.com/sells-group/healthmap/pkg/geocode"
)

// Server holds the collaborators behind the HTTP routes.
type Server struct {
	index          *geo.Index
	store          store.Store
	geocoder       geocode.Client
	geocodeTimeout time.Duration
	defaultRadius  float64
	defaultTopK    int
	allowedOrigins []string
}

// Option configures a Server.
type Option func(*Server)

// WithStore enables the nearby and impact routes.
func WithStore(st store.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithGeocoder attaches addresses to valid pins.
func WithGeocoder(gc geocode.Client, timeout time.Duration) Option {
	return func(s *Server) {
		s.geocoder = gc
		if timeout > 0 {
			s.geocodeTimeout = timeout
		}
	}
}

// WithProximityDefaults sets the radius and result cap used when a nearby
// request omits them.
func WithProximityDefaults(radiusKM float64, topK int) Option {
	return func(s *Server) {
		if radiusKM > 0 {
			s.defaultRadius = radiusKM
		}
		if topK > 0 {
			s.defaultTopK = topK
		}
	}
}

// WithAllowedOrigins sets the CORS origins. Empty allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// New creates a Server over idx.
func New(idx *geo.Index, opts ...Option) *Server {
	s := &Server{
		index:          idx,
		geocodeTimeout: 3 * time.Second,
		defaultRadius:  5,
		defaultTopK:    20,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	origins := s.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(
		requestID,
		middleware.Recoverer,
		instrument,
		cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
			ExposedHeaders: []string{requestIDHeader},
			MaxAge:         300,
		}),
	)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/validate", s.handleValidate)
		r.Get("/regions", s.handleRegions)
		r.Get("/regions/{name}/centroid", s.handleCentroid)
		r.Get("/regions/{name}/focus", s.handleRegionFocus)
		r.Get("/focus", s.handlePointFocus)
		r.Post("/nearby", s.handleNearby)
		r.Post("/impact", s.handleImpact)
	})
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.String("component", "api"), zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server", zap.String("component", "api"))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"regions": s.index.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response", zap.String("component", "api"), zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
