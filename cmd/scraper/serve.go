package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/post-scraper/internal/api"
	"github.com/user/post-scraper/internal/usecase"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the optional run schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		if v, _ := cmd.Flags().GetString("schedule"); v != "" {
			cfg.Schedule = v
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().String("schedule", "", "cron expression for scheduled runs (overrides SCHEDULE)")
}

// newScheduler registers a trigger on the run manager. Runs that would
// overlap one in progress are skipped.
func newScheduler(spec string, runs *usecase.RunManager, l *zap.Logger) (*cron.Cron, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	_, err := c.AddFunc(spec, func() {
		id, err := runs.Trigger()
		if err != nil {
			l.Warn("scheduled run skipped", zap.Error(err))
			return
		}
		l.Info("scheduled run started", zap.String("run_id", id))
	})
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return c, nil
}

func serve(ctx context.Context) error {
	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	runs := usecase.NewRunManager(a.pipeline, a.sites, log)

	var scheduler *cron.Cron
	if cfg.Schedule != "" {
		if scheduler, err = newScheduler(cfg.Schedule, runs, log); err != nil {
			return err
		}
		scheduler.Start()
		log.Info("schedule enabled", zap.String("schedule", cfg.Schedule))
	}

	server := api.NewServer(cfg.ServerPort, runs, a.checks, a.registry, a.metrics, log)
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	log.Info("server started", zap.String("port", cfg.ServerPort))

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	if err := runs.Shutdown(shutdownCtx); err != nil {
		log.Error("run did not stop in time", zap.Error(err))
	}

	log.Info("server exiting")
	return nil
}
