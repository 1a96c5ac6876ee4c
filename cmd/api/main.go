package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/tenant-billing/internal/config"
	"github.com/jwalitptl/tenant-billing/internal/email"
	adminHandler "github.com/jwalitptl/tenant-billing/internal/handler/admin"
	auditHandler "github.com/jwalitptl/tenant-billing/internal/handler/audit"
	authHandler "github.com/jwalitptl/tenant-billing/internal/handler/auth"
	billingHandler "github.com/jwalitptl/tenant-billing/internal/handler/billing"
	"github.com/jwalitptl/tenant-billing/internal/handler/health"
	"github.com/jwalitptl/tenant-billing/internal/handler/organization"
	promHandler "github.com/jwalitptl/tenant-billing/internal/handler/prometheus"
	webhookHandler "github.com/jwalitptl/tenant-billing/internal/handler/webhook"
	"github.com/jwalitptl/tenant-billing/internal/middleware"
	"github.com/jwalitptl/tenant-billing/internal/repository/storage"
	"github.com/jwalitptl/tenant-billing/internal/router"
	adminService "github.com/jwalitptl/tenant-billing/internal/service/admin"
	auditService "github.com/jwalitptl/tenant-billing/internal/service/audit"
	authService "github.com/jwalitptl/tenant-billing/internal/service/auth"
	billingService "github.com/jwalitptl/tenant-billing/internal/service/billing"
	orgService "github.com/jwalitptl/tenant-billing/internal/service/org"
	rbacService "github.com/jwalitptl/tenant-billing/internal/service/rbac"
	"github.com/jwalitptl/tenant-billing/pkg/auth"
	"github.com/jwalitptl/tenant-billing/pkg/circuitbreaker"
	"github.com/jwalitptl/tenant-billing/pkg/logger"
	"github.com/jwalitptl/tenant-billing/pkg/mercadopago"
	"github.com/jwalitptl/tenant-billing/pkg/metrics"
	"github.com/jwalitptl/tenant-billing/pkg/security"
	"github.com/jwalitptl/tenant-billing/pkg/validator"
	"github.com/jwalitptl/tenant-billing/pkg/webhook"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	cfg.Audit()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := validator.Register(); err != nil {
		log.Fatal().Err(err).Msg("failed to register request validators")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry, "tenant_billing")

	jwtSvc, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize token signer")
	}
	hasher := security.NewBcryptHasher(bcrypt.DefaultCost)

	gateway := mercadopago.NewClient(mercadopago.Config{
		AccessToken:     cfg.MercadoPago.AccessToken,
		NotificationURL: cfg.MercadoPago.NotificationURL,
		BaseURL:         cfg.MercadoPago.BaseURL,
		Timeout:         cfg.MercadoPago.Timeout,
		Breaker: mercadopago.NewBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn().Str("breaker", name).Str("from", string(from)).Str("to", string(to)).Msg("circuit breaker state changed")
		}),
		Observer: m,
	})

	// Initialize services
	auditSvc := auditService.NewService(store)
	rbacSvc := rbacService.NewService(store)
	authSvc := authService.NewService(store, jwtSvc, hasher)
	ledger := billingService.NewLedger(cfg.Billing.Period(), cfg.Billing.Grace())
	billingSvc := billingService.NewService(store, gateway, ledger, billingService.WithMetrics(m))
	orgSvc := orgService.NewService(store, rbacSvc, authSvc, email.NewService(cfg.SMTP), orgService.Config{
		PublicURL: cfg.App.PublicURL,
		InviteTTL: cfg.Billing.InviteTTL,
	})
	adminSvc := adminService.NewService(store, auditSvc, hasher, cfg.Billing.Period())

	created, err := adminSvc.Bootstrap(ctx, cfg.Admin.Email, cfg.Admin.Password)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap platform admin")
	}
	if created {
		log.Info().Str("email", cfg.Admin.Email).Msg("platform admin created")
	}

	// Initialize handlers and router
	authMiddleware := middleware.NewAuthMiddleware(authSvc, rbacSvc)
	r := router.NewRouter(authMiddleware, billingSvc, m, router.Handlers{
		Health:       health.NewHandler(map[string]health.Pinger{"database": store}),
		Metrics:      promHandler.New(registry),
		Auth:         authHandler.NewHandler(authSvc),
		Webhook:      webhookHandler.NewHandler(webhook.NewVerifier(cfg.MercadoPago.WebhookSecret), billingSvc, m),
		Billing:      billingHandler.NewHandler(billingSvc),
		Organization: organization.NewHandler(orgSvc),
		Admin:        adminHandler.NewHandler(adminSvc),
		Audit:        auditHandler.NewHandler(adminSvc),
	}, router.RouterConfig{
		RateLimit: middleware.RateLimiterConfig{
			Rate:  rate.Limit(cfg.RateLimit.RPS),
			Burst: cfg.RateLimit.Burst,
			TTL:   cfg.RateLimit.TTL,
		},
		CORS:           middleware.DefaultCORSConfig(cfg.Server.CORSOrigins),
		HSTS:           cfg.IsProduction(),
		RequestTimeout: cfg.Server.RequestTimeout,
	})
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.App.Env).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
