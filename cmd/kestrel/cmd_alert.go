package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/alert"
	"github.com/opensource-finance/kestrel/internal/dashboard"
	"github.com/opensource-finance/kestrel/internal/domain"
)

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Collect failed reports into the alert artifact",
	Long: `Alert scans every stored report and writes the alert artifact when at
least one report failed. When nothing failed any previous artifact is removed.

Exit codes:
  0  no failed report
  1  at least one failed report`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		eventBus, err := openBus(cfg)
		if err != nil {
			return err
		}
		if eventBus != nil {
			defer eventBus.Close()
		}

		ctx, cancel := signalContext()
		defer cancel()

		code, err := runAlert(ctx, cfg, store, eventBus)
		if err != nil {
			return withCode(exitPrecondition, err)
		}
		if code != alert.ExitOK {
			return withCode(code, nil)
		}
		return nil
	},
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render stored reports as an HTML dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, cancel := signalContext()
		defer cancel()

		if err := runDashboard(ctx, cfg, store); err != nil {
			return withCode(exitPrecondition, err)
		}
		return nil
	},
}

var (
	watchSchedule string
	watchRunNow   bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run alert and dashboard on a schedule until interrupted",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "", "cron spec or @every duration (default from config)")
	watchCmd.Flags().BoolVar(&watchRunNow, "run-now", true, "run once immediately on start")
}

// runAlert aggregates failed reports, writes the artifact and publishes it.
func runAlert(ctx context.Context, cfg *domain.Config, store domain.ReportStore, eventBus domain.EventBus) (int, error) {
	agg := alert.New(store, cfg.Alert)
	if eventBus != nil {
		agg.WithBus(eventBus)
	}

	art, err := agg.Aggregate(ctx)
	if err != nil {
		return alert.ExitFailed, err
	}
	path := filepath.Join(cfg.Quality.ArtifactDir, cfg.Quality.AlertFile)
	if art == nil {
		if err := alert.RemoveFile(path); err != nil {
			return alert.ExitFailed, err
		}
		slog.Info("no failed reports")
		return alert.ExitOK, nil
	}

	if err := alert.WriteFile(path, art); err != nil {
		return alert.ExitFailed, err
	}
	slog.Warn("quality alert written", "path", path, "failed", len(art.Failures))

	if err := agg.Publish(ctx, art); err != nil {
		slog.Error("failed to publish alert", "error", err)
	}
	return alert.ExitCode(art), nil
}

// runDashboard renders the dashboard and overwrites the artifact.
func runDashboard(ctx context.Context, cfg *domain.Config, store domain.ReportStore) error {
	page, err := dashboard.New(store).Render(ctx)
	if err != nil {
		return err
	}

	path := filepath.Join(cfg.Quality.ArtifactDir, cfg.Quality.DashboardFile)
	if err := dashboard.WriteFile(path, page); err != nil {
		return err
	}
	slog.Info("dashboard written", "path", path)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	eventBus, err := openBus(cfg)
	if err != nil {
		return err
	}
	if eventBus != nil {
		defer eventBus.Close()
	}

	schedule := watchSchedule
	if schedule == "" {
		schedule = cfg.Watch.Schedule
	}

	ctx, cancel := signalContext()
	defer cancel()

	tick := func() {
		start := time.Now()
		code, err := runAlert(ctx, cfg, store, eventBus)
		if err != nil {
			slog.Error("alert run failed", "error", err)
		}
		if err := runDashboard(ctx, cfg, store); err != nil {
			slog.Error("dashboard run failed", "error", err)
		}
		slog.Info("watch tick complete", "alert_exit_code", code, "duration_ms", time.Since(start).Milliseconds())
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, tick); err != nil {
		return withCode(exitPrecondition, err)
	}

	if watchRunNow {
		tick()
	}

	c.Start()
	slog.Info("watching report store", "schedule", schedule)

	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("watch stopped")
	return nil
}
