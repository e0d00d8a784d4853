// Package notification delivers best-effort escalation notices to citizens
// over the configured channels. Delivery failures are reported to the caller
// as a boolean and never propagate into the escalation transaction.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/civicgrid/complaint-service/internal/config"
	"github.com/civicgrid/complaint-service/internal/database"
	"github.com/civicgrid/complaint-service/internal/metrics"
)

// Manager fans an escalation notice out to the enabled channels.
type Manager struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Collector

	email   *EmailClient
	sms     *SMSClient
	webhook *WebhookClient

	limiters     map[string]*rate.Limiter
	limiterMutex sync.Mutex
}

// NewManager creates a notification manager with clients for every enabled
// channel. collector may be nil.
func NewManager(cfg *config.Config, logger *slog.Logger, collector *metrics.Collector) *Manager {
	m := &Manager{
		cfg:      cfg,
		logger:   logger,
		metrics:  collector,
		limiters: make(map[string]*rate.Limiter),
	}

	if cfg.Notifications.Email.Enabled {
		m.email = NewEmailClient(cfg.Notifications.Email, logger)
		m.limiters["email"] = perMinuteLimiter(cfg.Notifications.Email.RateLimitPerMin)
	}
	if cfg.Notifications.SMS.Enabled {
		m.sms = NewSMSClient(cfg.Notifications.SMS, logger)
		m.limiters["sms"] = perMinuteLimiter(cfg.Notifications.SMS.RateLimitPerMin)
	}
	if cfg.Notifications.Webhook.Enabled {
		m.webhook = NewWebhookClient(cfg.Notifications.Webhook, logger)
		m.limiters["webhook"] = perMinuteLimiter(cfg.Notifications.Webhook.RateLimitPerMin)
	}

	return m
}

func perMinuteLimiter(perMin int) *rate.Limiter {
	if perMin <= 0 {
		perMin = 60
	}
	return rate.NewLimiter(rate.Limit(float64(perMin)/60.0), perMin)
}

func (m *Manager) allow(channel string) bool {
	m.limiterMutex.Lock()
	defer m.limiterMutex.Unlock()

	limiter, ok := m.limiters[channel]
	if !ok {
		return true
	}
	return limiter.Allow()
}

// NotifyEscalation informs the complaint owner that their complaint was
// escalated. Returns true when every attempted channel succeeded; a system
// with no channels enabled has nothing to fail.
func (m *Manager) NotifyEscalation(ctx context.Context, complaint *database.Complaint, reason string) bool {
	subject := fmt.Sprintf("Complaint %s escalated", complaint.TrackingCode)
	body := fmt.Sprintf(
		"Dear %s,\n\nYour complaint %s (%s) has been escalated to a higher authority for faster resolution.\n\nReason: %s\n\nYou can track the current status with your tracking code at any time.",
		complaint.UserName, complaint.TrackingCode, complaint.Title, reason)

	ok := true

	if m.email != nil && complaint.UserEmail != "" {
		ok = m.deliver(ctx, "email", func() error {
			return m.email.Send(ctx, complaint.UserEmail, subject, body)
		}) && ok
	}

	if m.sms != nil && complaint.UserPhone != nil && *complaint.UserPhone != "" {
		smsBody := fmt.Sprintf("CivicGrid: complaint %s was escalated to a higher authority. Track it online for details.", complaint.TrackingCode)
		ok = m.deliver(ctx, "sms", func() error {
			return m.sms.Send(ctx, *complaint.UserPhone, smsBody)
		}) && ok
	}

	if m.webhook != nil {
		ok = m.deliver(ctx, "webhook", func() error {
			return m.webhook.Send(ctx, WebhookPayload{
				Event:        "complaint.escalated",
				ComplaintID:  complaint.ID,
				TrackingCode: complaint.TrackingCode,
				Severity:     complaint.Severity,
				Reason:       reason,
			})
		}) && ok
	}

	return ok
}

func (m *Manager) deliver(ctx context.Context, channel string, send func() error) bool {
	if !m.allow(channel) {
		m.logger.Warn("Notification rate limit exceeded", "channel", channel)
		if m.metrics != nil {
			m.metrics.IncNotification(channel, false)
		}
		return false
	}

	err := send()
	if m.metrics != nil {
		m.metrics.IncNotification(channel, err == nil)
	}
	if err != nil {
		m.logger.Error("Failed to send notification", "channel", channel, "error", err)
		return false
	}

	m.logger.Debug("Notification sent", "channel", channel)
	return true
}
