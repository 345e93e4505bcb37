package main

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/healthmap/internal/boundary"
	"github.com/sells-group/healthmap/internal/db"
	"github.com/sells-group/healthmap/internal/geo"
	"github.com/sells-group/healthmap/internal/store"
	"github.com/sells-group/healthmap/pkg/geocode"
)

// openStore opens the configured store and migrates it. The returned pool is
// nil unless the driver is postgres.
func openStore(ctx context.Context) (store.Store, db.Pool, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		st, err := store.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close() //nolint:errcheck
			return nil, nil, err
		}
		return st, nil, nil
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
		if err != nil {
			return nil, nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close() //nolint:errcheck
			return nil, nil, err
		}
		return st, st.Pool(), nil
	default:
		return nil, nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// boundarySource picks a source from boundary.source: "postgis", an
// http(s) URL, or a file path.
func boundarySource(pool db.Pool) (boundary.Source, error) {
	src := cfg.Boundary.Source
	switch {
	case src == "":
		return nil, eris.New("boundary source is required (HEALTHMAP_BOUNDARY_SOURCE)")
	case src == "postgis":
		if pool == nil {
			return nil, eris.New("boundary source postgis requires the postgres store")
		}
		return boundary.NewPostGISSource(pool, cfg.Boundary.Table, cfg.Boundary.NameColumn, cfg.Boundary.GeomColumn), nil
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return boundary.NewHTTPSource(src, cfg.Boundary.NameProperty), nil
	default:
		return boundary.FileSource{Path: src, NameProperty: cfg.Boundary.NameProperty}, nil
	}
}

// loadIndex builds a boundary index from the configured source.
func loadIndex(ctx context.Context, pool db.Pool) (*geo.Index, boundary.Source, error) {
	src, err := boundarySource(pool)
	if err != nil {
		return nil, nil, err
	}
	idx := geo.NewIndex(geo.WithExcludedRegions(cfg.Boundary.Exclude...))
	report, err := boundary.Refresh(ctx, idx, src)
	if err != nil {
		return nil, nil, err
	}
	for _, s := range report.Skipped {
		zap.L().Warn("boundary region skipped",
			zap.String("region", s.Name),
			zap.String("reason", s.Reason),
		)
	}
	return idx, src, nil
}

// buildGeocoder assembles the configured provider cascade behind a cache.
// It returns a nil client when no providers are configured. The returned
// func releases the Redis connection, if any.
func buildGeocoder(pool db.Pool) (geocode.Client, func(), error) {
	noop := func() {}
	if len(cfg.Geocode.Providers) == 0 {
		return nil, noop, nil
	}

	var providers []geocode.Provider
	for _, name := range cfg.Geocode.Providers {
		switch name {
		case "tiger":
			if pool == nil {
				return nil, noop, eris.New("geocode provider tiger requires the postgres store")
			}
			providers = append(providers, geocode.NewTigerProvider(pool, cfg.Geocode.MaxRating))
		case "google":
			if cfg.Geocode.GoogleKey == "" {
				return nil, noop, eris.New("google API key is required (HEALTHMAP_GEOCODE_GOOGLE_API_KEY)")
			}
			providers = append(providers, geocode.NewGoogleProvider(cfg.Geocode.GoogleKey,
				geocode.WithRateLimit(cfg.Geocode.RateLimit)))
		default:
			return nil, noop, eris.Errorf("unknown geocode provider: %s", name)
		}
	}
	client := geocode.NewCascadeClient(providers...)

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closeFn := func() { _ = rdb.Close() }
		return geocode.NewCachedClient(client, geocode.NewRedisCache(rdb, cfg.Geocode.CacheTTL)), closeFn, nil
	}
	return geocode.NewCachedClient(client, geocode.NewMemoryCache(cfg.Geocode.CacheSize, cfg.Geocode.CacheTTL)), noop, nil
}
