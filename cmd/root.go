package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/healthmap/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "healthmap",
	Short: "Geospatial analytics for community health reports",
	Long:  "Validates report locations against region boundaries, ranks nearby reports, and measures case-count changes around interventions.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// printJSON writes v as indented JSON to the command's output.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// jsonLines returns an encoder writing one compact JSON value per line.
func jsonLines(cmd *cobra.Command) *json.Encoder {
	return json.NewEncoder(cmd.OutOrStdout())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
