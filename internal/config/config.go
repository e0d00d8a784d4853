package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete configuration for the complaint service
type Config struct {
	Environment   string              `mapstructure:"environment"`
	Debug         bool                `mapstructure:"debug"`
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Escalation    EscalationConfig    `mapstructure:"escalation"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	HTTPPort     int           `mapstructure:"http_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// RedisConfig contains Redis configuration for the tracking cache
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PoolSize int           `mapstructure:"pool_size"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// KafkaConfig contains Kafka configuration for audit event publishing
type KafkaConfig struct {
	Enabled bool         `mapstructure:"enabled"`
	Brokers []string     `mapstructure:"brokers"`
	Topics  TopicsConfig `mapstructure:"topics"`
}

// TopicsConfig contains Kafka topic configuration
type TopicsConfig struct {
	ComplaintEscalated string `mapstructure:"complaint_escalated"`
}

// EscalationConfig contains escalation engine configuration
type EscalationConfig struct {
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	MinComplaintAge time.Duration `mapstructure:"min_complaint_age"`
	ReportWindow    time.Duration `mapstructure:"report_window"`
}

// NotificationsConfig contains notification channel configuration
type NotificationsConfig struct {
	Email   EmailConfig   `mapstructure:"email"`
	SMS     SMSConfig     `mapstructure:"sms"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// EmailConfig contains email notification configuration
type EmailConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	SendGridAPIKey  string        `mapstructure:"sendgrid_api_key"`
	FromAddress     string        `mapstructure:"from_address"`
	FromName        string        `mapstructure:"from_name"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RateLimitPerMin int           `mapstructure:"rate_limit_per_min"`
}

// SMSConfig contains SMS notification configuration
type SMSConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	TwilioSID       string        `mapstructure:"twilio_sid"`
	TwilioToken     string        `mapstructure:"twilio_token"`
	FromNumber      string        `mapstructure:"from_number"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RateLimitPerMin int           `mapstructure:"rate_limit_per_min"`
}

// WebhookConfig contains webhook notification configuration
type WebhookConfig struct {
	Enabled         bool              `mapstructure:"enabled"`
	URL             string            `mapstructure:"url"`
	Headers         map[string]string `mapstructure:"headers"`
	Timeout         time.Duration     `mapstructure:"timeout"`
	RateLimitPerMin int               `mapstructure:"rate_limit_per_min"`
}

// SchedulerConfig contains background task scheduler configuration
type SchedulerConfig struct {
	Enabled                     bool   `mapstructure:"enabled"`
	NotificationCleanupEnabled  bool   `mapstructure:"notification_cleanup_enabled"`
	NotificationCleanupSchedule string `mapstructure:"notification_cleanup_schedule"`
	NotificationRetentionDays   int    `mapstructure:"notification_retention_days"`
	MetricsRefreshEnabled       bool   `mapstructure:"metrics_refresh_enabled"`
	MetricsRefreshSchedule      string `mapstructure:"metrics_refresh_schedule"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/complaint-service")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("COMPLAINT_SERVICE")

	// Config file is optional
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// General
	viper.SetDefault("environment", "development")
	viper.SetDefault("debug", false)

	// Server
	viper.SetDefault("server.http_port", 8086)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// Database
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "civicgrid_complaints")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("database.migrations_path", "file://migrations")

	// Redis
	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.cache_ttl", "60s")

	// Kafka
	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topics.complaint_escalated", "complaint-escalated")

	// Escalation
	viper.SetDefault("escalation.sweep_interval", "1h")
	viper.SetDefault("escalation.min_complaint_age", "1h")
	viper.SetDefault("escalation.report_window", "720h")

	// Notifications
	viper.SetDefault("notifications.email.enabled", false)
	viper.SetDefault("notifications.email.from_name", "CivicGrid Complaints")
	viper.SetDefault("notifications.email.timeout", "30s")
	viper.SetDefault("notifications.email.rate_limit_per_min", 60)

	viper.SetDefault("notifications.sms.enabled", false)
	viper.SetDefault("notifications.sms.timeout", "30s")
	viper.SetDefault("notifications.sms.rate_limit_per_min", 10)

	viper.SetDefault("notifications.webhook.enabled", false)
	viper.SetDefault("notifications.webhook.timeout", "30s")
	viper.SetDefault("notifications.webhook.rate_limit_per_min", 120)

	// Scheduler
	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.notification_cleanup_schedule", "0 0 3 * * *")
	viper.SetDefault("scheduler.notification_retention_days", 90)
	viper.SetDefault("scheduler.notification_cleanup_enabled", true)
	viper.SetDefault("scheduler.metrics_refresh_schedule", "0 */5 * * * *")
	viper.SetDefault("scheduler.metrics_refresh_enabled", true)

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}
