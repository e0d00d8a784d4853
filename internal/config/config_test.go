package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8086, cfg.Server.HTTPPort)

	// Escalation sweep defaults: hourly sweeps, one hour minimum age,
	// thirty day reporting window.
	assert.Equal(t, time.Hour, cfg.Escalation.SweepInterval)
	assert.Equal(t, time.Hour, cfg.Escalation.MinComplaintAge)
	assert.Equal(t, 720*time.Hour, cfg.Escalation.ReportWindow)

	assert.Equal(t, "file://migrations", cfg.Database.MigrationsPath)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)

	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 60*time.Second, cfg.Redis.CacheTTL)

	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "complaint-escalated", cfg.Kafka.Topics.ComplaintEscalated)

	// Notification channels are opt-in.
	assert.False(t, cfg.Notifications.Email.Enabled)
	assert.False(t, cfg.Notifications.SMS.Enabled)
	assert.False(t, cfg.Notifications.Webhook.Enabled)

	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 90, cfg.Scheduler.NotificationRetentionDays)
	assert.Equal(t, "0 0 3 * * *", cfg.Scheduler.NotificationCleanupSchedule)

	assert.Equal(t, "info", cfg.Logging.Level)
}
