package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/fitness-tracker/internal/aggregate"
	"github.com/example/fitness-tracker/internal/application"
	"github.com/example/fitness-tracker/internal/calendar"
	"github.com/example/fitness-tracker/internal/config"
	"github.com/example/fitness-tracker/internal/httpapi"
	"github.com/example/fitness-tracker/internal/ingest"
	"github.com/example/fitness-tracker/internal/leaderboard"
	"github.com/example/fitness-tracker/internal/prefs"
	"github.com/example/fitness-tracker/internal/profile"
	"github.com/example/fitness-tracker/internal/reconcile"
	"github.com/example/fitness-tracker/internal/sensor"
	"github.com/example/fitness-tracker/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	location, err := cfg.Location()
	if err != nil {
		logger.Error("failed to resolve timezone", "error", err)
		os.Exit(1)
	}

	pool, err := store.OpenPool(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := pool.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	now := time.Now
	calc := calendar.NewCalculator(location)

	documents, err := store.NewSQLiteStore(ctx, pool, now)
	if err != nil {
		logger.Error("failed to initialise document store", "error", err)
		os.Exit(1)
	}
	preferences, err := prefs.NewCache(ctx, pool)
	if err != nil {
		logger.Error("failed to initialise preference cache", "error", err)
		os.Exit(1)
	}
	archive, err := sensor.NewArchive(ctx, pool, calc)
	if err != nil {
		logger.Error("failed to initialise sensor archive", "error", err)
		os.Exit(1)
	}

	adapter := sensor.NewAdapter(archive, calc, cfg.QueryTimeout)
	aggregator := aggregate.New(adapter, calc, now)
	reconciler := reconcile.New(documents, calc, logger)
	profiles := profile.NewDirectory(documents)
	engine := leaderboard.NewEngine(profiles)

	healthService := application.NewHealthService(application.HealthServiceDeps{
		Aggregator:  aggregator,
		Persister:   reconciler,
		Store:       documents,
		Preferences: preferences,
		Ranker:      engine,
		Profiles:    profiles,
		Calculator:  calc,
		IDGenerator: uuid.NewString,
		Now:         now,
		Logger:      logger,
	})

	if cfg.IngestEnabled() {
		consumer, err := ingest.NewConsumer(ingest.ConsumerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, archive, cycleTrigger{service: healthService, logger: logger}, logger)
		if err != nil {
			logger.Error("failed to initialise sample consumer", "error", err)
			os.Exit(1)
		}
		defer func() {
			if cerr := consumer.Close(); cerr != nil {
				logger.Error("failed to close sample consumer", "error", cerr)
			}
		}()
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("sample consumer stopped", "error", err)
			}
		}()
	}

	healthHandler := httpapi.NewHealthHandler(healthService, logger)
	router := httpapi.NewRouter(httpapi.RouterConfig{
		Health:     healthHandler,
		Middleware: []func(http.Handler) http.Handler{httpapi.RequestLogger(logger)},
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("tracker API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

// cycleTrigger refreshes a user's aggregates when new samples arrive on the
// stream. Failures are logged and dropped; the next trigger retries.
type cycleTrigger struct {
	service *application.HealthService
	logger  *slog.Logger
}

func (t cycleTrigger) Trigger(ctx context.Context, userID string) {
	if _, err := t.service.RunCycle(ctx, userID); err != nil {
		t.logger.WarnContext(ctx, "stream triggered cycle failed", "user_id", userID, "error", err)
	}
}
