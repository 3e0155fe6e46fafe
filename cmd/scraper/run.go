package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once and write the results",
	RunE: func(cmd *cobra.Command, args []string) error {
		if v, _ := cmd.Flags().GetString("sites"); v != "" {
			cfg.SitesFile = v
		}
		if v, _ := cmd.Flags().GetString("output"); v != "" {
			cfg.OutputPath = v
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runOnce(ctx)
	},
}

func init() {
	runCmd.Flags().String("sites", "", "YAML file with site profiles (overrides SITES_FILE)")
	runCmd.Flags().String("output", "", "output JSON path (overrides OUTPUT_PATH)")
}

func runOnce(ctx context.Context) error {
	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	runID := uuid.NewString()
	summary, err := a.pipeline.Run(ctx, runID, a.sites)
	if err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}

	log.Info("DONE",
		zap.String("run_id", runID),
		zap.String("output", cfg.OutputPath),
		zap.Int("posts", summary.PostsWritten),
	)
	return nil
}
