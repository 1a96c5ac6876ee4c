package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/tenant-billing/internal/config"
	"github.com/jwalitptl/tenant-billing/internal/handler/health"
	promHandler "github.com/jwalitptl/tenant-billing/internal/handler/prometheus"
	"github.com/jwalitptl/tenant-billing/internal/middleware"
	"github.com/jwalitptl/tenant-billing/internal/repository/storage"
	"github.com/jwalitptl/tenant-billing/pkg/logger"
	"github.com/jwalitptl/tenant-billing/pkg/messaging"
	"github.com/jwalitptl/tenant-billing/pkg/messaging/redis"
	"github.com/jwalitptl/tenant-billing/pkg/metrics"
	"github.com/jwalitptl/tenant-billing/pkg/worker"
)

// The worker relays billing events; it never changes billing state.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry, "tenant_billing_worker")

	broker, err := redis.NewRedisBroker(ctx, redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, m)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Redis broker")
	}
	defer broker.Close()

	outbox := store.Repos().Outbox
	processor, err := worker.NewOutboxProcessor(
		outbox,
		messaging.NewEventPublisher(broker, cfg.Outbox.Channel),
		worker.OutboxProcessorConfig{
			BatchSize:     cfg.Outbox.BatchSize,
			PollInterval:  cfg.Outbox.PollInterval,
			RetryAttempts: cfg.Outbox.RetryAttempts,
			RetryDelay:    cfg.Outbox.RetryDelay,
			MaxRetries:    cfg.Outbox.MaxRetries,
		},
		m,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create outbox processor")
	}
	cleanup := worker.NewOutboxCleanupWorker(outbox, cfg.Outbox.Retention, cfg.Outbox.CleanupInterval)

	srv := healthServer(cfg.Outbox.HealthPort, registry, map[string]health.Pinger{
		"database": store,
		"redis":    broker,
	})
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server failed")
			stop()
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Start(ctx)
	}()

	log.Info().Str("channel", cfg.Outbox.Channel).Msg("worker started")
	<-ctx.Done()
	log.Info().Msg("shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}
	wg.Wait()
	log.Info().Msg("worker exited properly")
}

func healthServer(port int, registry *prometheus.Registry, deps map[string]health.Pinger) *http.Server {
	engine := gin.New()
	engine.Use(middleware.Recovery())

	rg := engine.Group("")
	health.NewHandler(deps).RegisterRoutes(rg)
	promHandler.New(registry).RegisterRoutes(rg)

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}
}
