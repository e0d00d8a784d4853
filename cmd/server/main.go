package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/civicgrid/complaint-service/internal/cache"
	"github.com/civicgrid/complaint-service/internal/config"
	"github.com/civicgrid/complaint-service/internal/database"
	"github.com/civicgrid/complaint-service/internal/engine"
	"github.com/civicgrid/complaint-service/internal/events"
	"github.com/civicgrid/complaint-service/internal/handlers"
	"github.com/civicgrid/complaint-service/internal/metrics"
	"github.com/civicgrid/complaint-service/internal/notification"
	"github.com/civicgrid/complaint-service/internal/scheduler"
)

const (
	serviceName = "complaint-service"
	version     = "1.0.0"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	logger := setupLogging(cfg)
	logger.Info("Starting Complaint Service",
		"service", serviceName,
		"version", version,
		"environment", cfg.Environment)

	// Setup database connection
	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", "error", err)
		}
	}()

	// Run database migrations
	if err := database.RunMigrations(cfg.Database); err != nil {
		logger.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// Setup repositories
	complaintRepo := database.NewComplaintRepository(db, logger)
	ruleRepo := database.NewRuleRepository(db, logger)
	authorityRepo := database.NewAuthorityRepository(db, logger)
	historyRepo := database.NewHistoryRepository(db, logger)
	escalationLogRepo := database.NewEscalationLogRepository(db, logger)
	notificationRepo := database.NewNotificationRepository(db, logger)
	escalationStore := database.NewEscalationStore(db, logger)

	// Setup metrics collector
	metricsCollector := metrics.NewCollector(prometheus.DefaultRegisterer)

	// Setup notification manager
	notificationManager := notification.NewManager(cfg, logger, metricsCollector)

	// Setup Kafka event publisher
	var eventPublisher *events.Publisher
	if cfg.Kafka.Enabled {
		eventPublisher = events.NewPublisher(cfg.Kafka, logger)
		defer func() {
			if err := eventPublisher.Close(); err != nil {
				logger.Error("Failed to close event publisher", "error", err)
			}
		}()
	}

	// Setup Redis tracking cache
	var trackingCache *cache.TrackingCache
	if cfg.Redis.Enabled {
		trackingCache, err = cache.NewTrackingCache(cfg.Redis, logger)
		if err != nil {
			logger.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := trackingCache.Close(); err != nil {
				logger.Error("Failed to close Redis connection", "error", err)
			}
		}()
	}

	// Setup escalation engine
	var eventSink engine.EventPublisher
	if eventPublisher != nil {
		eventSink = eventPublisher
	}
	escalationEngine := engine.New(
		cfg,
		logger,
		ruleRepo,
		complaintRepo,
		authorityRepo,
		escalationLogRepo,
		escalationStore,
		notificationManager,
		eventSink,
		metricsCollector,
	)

	// Setup scheduler for periodic housekeeping tasks
	taskScheduler := scheduler.New(cfg, logger)
	if cfg.Scheduler.Enabled {
		if err := registerScheduledTasks(taskScheduler, cfg, logger, notificationRepo, complaintRepo, metricsCollector); err != nil {
			logger.Error("Failed to register scheduled tasks", "error", err)
			os.Exit(1)
		}
	}

	// Setup HTTP handlers
	httpHandlers := handlers.NewHTTPHandler(
		cfg,
		logger,
		escalationEngine,
		complaintRepo,
		historyRepo,
		notificationRepo,
		trackingCache,
	)

	// Setup HTTP router
	httpRouter := mux.NewRouter()
	httpHandlers.RegisterRoutes(httpRouter)

	// Add Prometheus metrics endpoint
	httpRouter.Handle("/metrics", promhttp.Handler())

	// Setup HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      httpRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start escalation engine; the first sweep runs before this returns so
	// breaches accrued during downtime are handled immediately.
	if err := escalationEngine.Start(ctx); err != nil {
		logger.Error("Failed to start escalation engine", "error", err)
		os.Exit(1)
	}

	// Start scheduler
	if cfg.Scheduler.Enabled {
		if err := taskScheduler.Start(ctx); err != nil {
			logger.Error("Failed to start scheduler", "error", err)
			os.Exit(1)
		}
	}

	// Start HTTP server
	httpErrChan := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "port", cfg.Server.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpErrChan <- err
		}
	}()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig)
	case err := <-httpErrChan:
		logger.Error("HTTP server failed", "error", err)
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	// Graceful shutdown
	logger.Info("Shutting down services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown HTTP server gracefully", "error", err)
	}

	escalationEngine.Stop()
	taskScheduler.Stop()

	logger.Info("Service shutdown complete")
}

func registerScheduledTasks(
	taskScheduler *scheduler.Scheduler,
	cfg *config.Config,
	logger *slog.Logger,
	notificationRepo *database.NotificationRepository,
	complaintRepo *database.ComplaintRepository,
	metricsCollector *metrics.Collector,
) error {
	if err := taskScheduler.AddTask(&scheduler.ScheduledTask{
		ID:       "notification-cleanup",
		Schedule: cfg.Scheduler.NotificationCleanupSchedule,
		Handler:  scheduler.NewNotificationCleanupHandler(notificationRepo, cfg, logger),
		Enabled:  cfg.Scheduler.NotificationCleanupEnabled,
	}); err != nil {
		return err
	}

	return taskScheduler.AddTask(&scheduler.ScheduledTask{
		ID:       "metrics-refresh",
		Schedule: cfg.Scheduler.MetricsRefreshSchedule,
		Handler:  scheduler.NewMetricsRefreshHandler(complaintRepo, metricsCollector, logger),
		Enabled:  cfg.Scheduler.MetricsRefreshEnabled,
	})
}

// setupLogging configures structured logging based on configuration
func setupLogging(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
