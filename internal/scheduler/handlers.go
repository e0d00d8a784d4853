package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/civicgrid/complaint-service/internal/config"
	"github.com/civicgrid/complaint-service/internal/database"
	"github.com/civicgrid/complaint-service/internal/metrics"
)

// NotificationCleanupHandler purges notifications past the retention window.
type NotificationCleanupHandler struct {
	notificationRepo *database.NotificationRepository
	cfg              *config.Config
	logger           *slog.Logger
}

// NewNotificationCleanupHandler creates a new notification cleanup handler
func NewNotificationCleanupHandler(notificationRepo *database.NotificationRepository, cfg *config.Config, logger *slog.Logger) *NotificationCleanupHandler {
	return &NotificationCleanupHandler{
		notificationRepo: notificationRepo,
		cfg:              cfg,
		logger:           logger,
	}
}

// Execute performs notification cleanup
func (h *NotificationCleanupHandler) Execute(ctx context.Context) error {
	deleted, err := h.notificationRepo.CleanupOld(ctx, h.cfg.Scheduler.NotificationRetentionDays)
	if err != nil {
		return fmt.Errorf("failed to cleanup notifications: %w", err)
	}

	h.logger.Info("Notification cleanup completed",
		"deleted", deleted,
		"retention_days", h.cfg.Scheduler.NotificationRetentionDays)
	return nil
}

// Name returns the handler name
func (h *NotificationCleanupHandler) Name() string {
	return "Notification Cleanup"
}

// MetricsRefreshHandler refreshes the open-complaints gauges from the
// database so dashboards stay current between escalation sweeps.
type MetricsRefreshHandler struct {
	complaintRepo *database.ComplaintRepository
	collector     *metrics.Collector
	logger        *slog.Logger
}

// NewMetricsRefreshHandler creates a new metrics refresh handler
func NewMetricsRefreshHandler(complaintRepo *database.ComplaintRepository, collector *metrics.Collector, logger *slog.Logger) *MetricsRefreshHandler {
	return &MetricsRefreshHandler{
		complaintRepo: complaintRepo,
		collector:     collector,
		logger:        logger,
	}
}

// Execute refreshes the gauges
func (h *MetricsRefreshHandler) Execute(ctx context.Context) error {
	counts, err := h.complaintRepo.CountOpenBySeverity(ctx)
	if err != nil {
		return fmt.Errorf("failed to count open complaints: %w", err)
	}

	seen := make(map[string]bool)
	for _, count := range counts {
		h.collector.SetOpenComplaints(count.Severity, count.Count)
		seen[count.Severity] = true
	}
	// Severities with no open complaints must read zero, not stale.
	for _, severity := range database.ValidSeverities {
		if !seen[severity] {
			h.collector.SetOpenComplaints(severity, 0)
		}
	}

	return nil
}

// Name returns the handler name
func (h *MetricsRefreshHandler) Name() string {
	return "Metrics Refresh"
}
