package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nekogravitycat/facility-booking-core/internal/app"
	"github.com/nekogravitycat/facility-booking-core/internal/branch"
	"github.com/nekogravitycat/facility-booking-core/internal/config"
	"github.com/nekogravitycat/facility-booking-core/internal/db"
	"github.com/nekogravitycat/facility-booking-core/internal/events"
)

func main() {
	// For receiving Ctrl+C / SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := app.NewLogger(cfg.AppEnv)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Connect DB; without a DSN every store lives in memory
	var pool *pgxpool.Pool
	if cfg.DBDSN != "" {
		pool, err = db.NewPool(ctx, cfg.DBDSN)
		if err != nil {
			logger.Fatal("failed to connect to db", zap.Error(err))
		}
		defer pool.Close()

		version, err := db.Migrate(ctx, pool)
		if err != nil {
			logger.Fatal("failed to migrate db", zap.Error(err))
		}
		logger.Info("database ready", zap.Int64("schema_version", version))
	} else {
		logger.Warn("DB_DSN not set, using in-memory stores")
	}

	// Branch policies, holidays and promotions
	var settings *branch.SettingsFile
	if cfg.SettingsFile != "" {
		settings, err = branch.LoadSettingsFile(cfg.SettingsFile, cfg.HoldTimeout)
		if err != nil {
			logger.Fatal("failed to load settings file", zap.String("path", cfg.SettingsFile), zap.Error(err))
		}
		logger.Info("settings loaded",
			zap.String("path", cfg.SettingsFile),
			zap.Int("holidays", settings.Holidays.Len()),
			zap.Int("promotions", len(settings.Promotions)),
		)
	}

	// Event publisher
	var publisher events.Publisher
	if cfg.RabbitURL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.RabbitURL, cfg.EventsExchange)
		if err != nil {
			logger.Fatal("failed to connect to rabbitmq", zap.Error(err))
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
	} else {
		publisher = events.NewLogPublisher(logger.Named("events"))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	container := app.NewContainer(app.Config{
		DBPool:      pool,
		Settings:    settings,
		HoldTimeout: cfg.HoldTimeout,
		Publisher:   publisher,
		Registerer:  registry,
		Logger:      logger,
	})

	scheduler := app.NewScheduler(cfg.SweepInterval, logger.Named("scheduler"), container.Metrics, container.SweepJobs()...)
	scheduler.Start(ctx)

	// Use http.Server for graceful shutdown
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Run server in separate goroutine
	go func() {
		logger.Info("metrics server running", zap.String("addr", cfg.MetricsAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
			stop()
		}
	}()

	// Wait for Ctrl+C
	<-ctx.Done()
	logger.Info("shutdown signal received")

	scheduler.Stop()

	// Create a shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server forced to shutdown", zap.Error(err))
	}

	logger.Info("worker exited gracefully")
}
