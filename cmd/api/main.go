package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"example.com/rehabcoach/internal/api"
	"example.com/rehabcoach/internal/auth"
	"example.com/rehabcoach/internal/catalog"
	"example.com/rehabcoach/internal/config"
	"example.com/rehabcoach/internal/observability"
	"example.com/rehabcoach/internal/outbox"
	persistence "example.com/rehabcoach/internal/persistence/postgres"
	"example.com/rehabcoach/internal/reminder"
	"example.com/rehabcoach/internal/session"
	httptransport "example.com/rehabcoach/internal/transport/http"
)

// Populated at build time via -ldflags.
var (
	version string
	commit  string
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using process environment")
	}

	cfg := config.Load()
	observability.SetBuildInfo(version, commit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	cat, err := catalog.Load()
	if err != nil {
		logger.Fatal("load exercise catalog", zap.Error(err))
	}

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
		outbox.WithLogger(logger.Named("outbox")))

	go dispatcher.Start(ctx)

	sessions := session.NewService(
		cat,
		session.NewMemoryStore(),
		persistence.NewSnapshotStore(pool),
		persistence.NewProgressStore(pool),
		session.WithLogger(logger.Named("session")),
		session.WithResumeWindow(cfg.ResumeWindow),
	)

	scheduler := reminder.NewScheduler(
		persistence.NewReminderStore(pool),
		reminder.NewClient(cfg.DeliveryAPIURL, cfg.DeliveryTimeout),
		reminder.Policy{
			MaxAttempts: cfg.ReminderMaxAttempts,
			BaseDelay:   cfg.ReminderBaseDelay,
			MaxDelay:    cfg.ReminderMaxDelay,
		},
		reminder.WithLogger(logger.Named("reminder")),
		reminder.WithDefaultTimezone(cfg.DefaultTimezone),
	)

	handler := api.NewHandler(sessions, scheduler, cat)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	requestLogger := httptransport.RequestLogger(logger.Named("http"))
	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, auth.DefaultSkipper)

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, authMiddleware.Wrap(requestLogger(mux)))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("coach api listening", zap.String("address", cfg.HTTPAddress))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}

	dispatcher.Wait()
}
