// Kestrel - Data quality checks for batch pipelines.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Exit codes shared by every command.
const (
	exitOK           = 0
	exitFindings     = 1
	exitPrecondition = 2
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// withCode wraps err so that main exits with code.
func withCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

var configPath string

var rootCmd = &cobra.Command{
	Use:           "kestrel",
	Short:         "Validate datasets and report on data quality",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv(config.EnvPrefix+"_CONFIG"),
		"config file (yaml, json or toml)")

	rootCmd.AddCommand(
		validateCmd,
		alertCmd,
		dashboardCmd,
		watchCmd,
		reportsCmd,
		serveCmd,
		versionCmd,
	)
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		os.Exit(exitOK)
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			slog.Error("kestrel failed", "error", ee.err)
		}
		os.Exit(ee.code)
	}

	slog.Error("kestrel failed", "error", err)
	os.Exit(exitPrecondition)
}

// loadConfig reads the configuration and installs the default logger.
func loadConfig() (*domain.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, withCode(exitPrecondition, err)
	}
	setupLogger(cfg.Logging)

	slog.Debug("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)
	return cfg, nil
}

// setupLogger installs a structured logger on stderr; stdout is left to
// command output.
func setupLogger(cfg domain.LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// openStore opens the configured report store.
func openStore(cfg *domain.Config) (domain.ReportStore, error) {
	store, err := repository.New(cfg.Repository)
	if err != nil {
		return nil, withCode(exitPrecondition, fmt.Errorf("failed to initialize report store: %w", err))
	}
	slog.Debug("report store initialized", "driver", cfg.Repository.Driver)
	return store, nil
}

// openBus opens the configured event bus. A nil bus means none is configured.
func openBus(cfg *domain.Config) (domain.EventBus, error) {
	b, err := bus.New(cfg.EventBus)
	if err != nil {
		return nil, withCode(exitPrecondition, fmt.Errorf("failed to initialize event bus: %w", err))
	}
	return b, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "kestrel %s (commit %s, built %s)\n", Version, Commit, BuildDate)
	},
}
