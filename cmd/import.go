package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/healthmap/internal/ingest"
)

var importConcurrency int

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import reports or daily case counts from CSV or XLSX",
}

var importReportsCmd = &cobra.Command{
	Use:   "reports FILE",
	Short: "Import reports, keeping only pins inside a region",
	Long: `Reads category, description, status, lat, lng, reported_at, series_key,
address, and id columns. Pins outside every region are skipped; reports
without an address are reverse geocoded when a provider is configured.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		if err := cfg.Validate("boundary"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, pool, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		idx, _, err := loadIndex(ctx, pool)
		if err != nil {
			return err
		}
		gc, closeGeocoder, err := buildGeocoder(pool)
		if err != nil {
			return err
		}
		defer closeGeocoder()

		opts := []ingest.Option{ingest.WithConcurrency(importConcurrency)}
		if gc != nil {
			opts = append(opts, ingest.WithGeocoder(gc, cfg.Geocode.Timeout))
		}
		stats, err := ingest.ImportReports(ctx, args[0], st, idx, opts...)
		if err != nil {
			return err
		}
		return printJSON(cmd, stats)
	},
}

var importCountsCmd = &cobra.Command{
	Use:   "counts FILE",
	Short: "Import daily case counts (series_key, date, count)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := ingest.ImportCounts(ctx, args[0], st)
		if err != nil {
			return err
		}
		return printJSON(cmd, stats)
	},
}

func init() {
	importReportsCmd.Flags().IntVar(&importConcurrency, "concurrency", 4, "concurrent geocode and insert workers")
	importCmd.AddCommand(importReportsCmd, importCountsCmd)
	rootCmd.AddCommand(importCmd)
}
