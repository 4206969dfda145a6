package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/alert"
	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/dashboard"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve reports, artifacts and on-demand validation over HTTP",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	rc, err := config.LoadRuleConfig(cfg.Quality)
	if err != nil {
		return withCode(exitPrecondition, err)
	}

	// Initialize Report Store
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return withCode(exitPrecondition, fmt.Errorf("failed to initialize cache: %w", err))
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	eventBus, err := openBus(cfg)
	if err != nil {
		return err
	}
	if eventBus != nil {
		defer eventBus.Close()
		slog.Info("event bus initialized", "type", cfg.EventBus.Type)
	}

	engine, err := rules.NewEngine()
	if err != nil {
		return withCode(exitPrecondition, fmt.Errorf("failed to initialize rule engine: %w", err))
	}

	runner := pipeline.NewRunner(engine, store, rc)
	agg := alert.New(store, cfg.Alert)
	if eventBus != nil {
		runner.WithBus(eventBus)
		agg.WithBus(eventBus)
	}

	// Keep the artifact files current when reports are saved over the bus.
	if eventBus != nil {
		refresher := worker.NewWorker(eventBus, func(ctx context.Context) error {
			if _, err := runAlert(ctx, cfg, store, nil); err != nil {
				return err
			}
			return runDashboard(ctx, cfg, store)
		})
		if err := refresher.Start(); err != nil {
			slog.Error("failed to start refresh worker", "error", err)
		} else {
			defer refresher.Stop()
		}
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Store:      store,
		Cache:      cacheImpl,
		Runner:     runner,
		Aggregator: agg,
		Renderer:   dashboard.New(store),
		Version:    Version,
	})

	ctx, cancel := signalContext()
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cmd, cfg)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return withCode(exitPrecondition, fmt.Errorf("server failed: %w", err))
	}
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
	return nil
}

func printBanner(cmd *cobra.Command, cfg *domain.Config) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  KESTREL - data quality reports")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Version:  %s\n", Version)
	fmt.Fprintf(w, "  Store:    %s\n", cfg.Repository.Driver)
	fmt.Fprintf(w, "  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Endpoints:")
	fmt.Fprintln(w, "    POST /validate?source=&filename= - Validate an uploaded dataset")
	fmt.Fprintln(w, "    GET  /reports                    - List stored reports")
	fmt.Fprintln(w, "    GET  /reports/{filename}         - Get one stored report")
	fmt.Fprintln(w, "    GET  /alerts                     - Alert artifact (204 when clean)")
	fmt.Fprintln(w, "    GET  /dashboard                  - HTML dashboard")
	fmt.Fprintln(w, "    GET  /metrics                    - Prometheus metrics")
	fmt.Fprintln(w, "    GET  /health                     - Health check")
	fmt.Fprintln(w)
}
