package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/healthmap/internal/api"
	"github.com/sells-group/healthmap/internal/boundary"
	"github.com/sells-group/healthmap/internal/geo"
)

var (
	servePort    int
	serveRefresh time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		cfg.Server.Port = port
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, pool, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		idx, src, err := loadIndex(ctx, pool)
		if err != nil {
			return err
		}
		gc, closeGeocoder, err := buildGeocoder(pool)
		if err != nil {
			return err
		}
		defer closeGeocoder()

		if serveRefresh > 0 {
			go refreshLoop(ctx, idx, src, serveRefresh)
		}

		opts := []api.Option{
			api.WithStore(st),
			api.WithProximityDefaults(cfg.Proximity.RadiusKM, cfg.Proximity.TopK),
			api.WithAllowedOrigins(cfg.Server.AllowedOrigins...),
		}
		if gc != nil {
			opts = append(opts, api.WithGeocoder(gc, cfg.Geocode.Timeout))
		}
		return api.New(idx, opts...).ListenAndServe(ctx, fmt.Sprintf(":%d", port))
	},
}

// refreshLoop reloads boundaries every interval. A failed refresh keeps the
// current regions.
func refreshLoop(ctx context.Context, idx *geo.Index, src boundary.Source, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := boundary.Refresh(ctx, idx, src); err != nil {
				zap.L().Warn("boundary refresh failed", zap.String("source", src.Name()), zap.Error(err))
			}
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().DurationVar(&serveRefresh, "refresh", 0, "reload boundaries at this interval (0 disables)")
	rootCmd.AddCommand(serveCmd)
}
