// Package worker refreshes derived artifacts when reports are saved.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// RefreshFunc regenerates whatever is derived from the report store.
type RefreshFunc func(ctx context.Context) error

// Worker listens for saved reports on the EventBus and runs a refresh
// after each one.
type Worker struct {
	bus     domain.EventBus
	refresh RefreshFunc

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	processed     atomic.Int64
	failedReports atomic.Int64
	refreshErrors atomic.Int64
}

// NewWorker creates a new refresh worker.
func NewWorker(bus domain.EventBus, refresh RefreshFunc) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		refresh: refresh,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to domain.TopicReportSaved.
func (w *Worker) Start() error {
	if w.bus == nil {
		return fmt.Errorf("worker requires an event bus")
	}

	sub, err := w.bus.Subscribe(w.ctx, domain.TopicReportSaved, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", domain.TopicReportSaved, err)
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("refresh worker started", "topic", domain.TopicReportSaved)
	return nil
}

// handleMessage handles one saved-report event.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	report, err := domain.DecodeReport(msg.Payload)
	if err != nil {
		slog.Warn("dropping unreadable report event", "message_id", msg.ID, "error", err)
		return err
	}

	w.processed.Add(1)
	if report.Failed() {
		w.failedReports.Add(1)
		slog.Warn("failed report saved",
			"filename", report.Filename,
			"source", report.Source,
			"errors", len(report.Errors),
		)
	}

	if w.refresh == nil {
		return nil
	}
	if err := w.refresh(ctx); err != nil {
		w.refreshErrors.Add(1)
		slog.Error("artifact refresh failed", "filename", report.Filename, "error", err)
		return err
	}

	slog.Debug("artifacts refreshed",
		"filename", report.Filename,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("refresh worker stopped")
	return nil
}

// Stats describes worker activity.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	FailedReports     int64    `json:"failedReports"`
	RefreshErrors     int64    `json:"refreshErrors"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	w.mu.Unlock()

	return Stats{
		SubscriptionCount: len(topics),
		Topics:            topics,
		Processed:         w.processed.Load(),
		FailedReports:     w.failedReports.Load(),
		RefreshErrors:     w.refreshErrors.Load(),
	}
}
