package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/tenant-billing/internal/middleware"
	"github.com/jwalitptl/tenant-billing/internal/model"
	"github.com/jwalitptl/tenant-billing/pkg/metrics"
)

const BasePath = "/api/v1"

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// MemberHandler also serves routes behind the access gate.
type MemberHandler interface {
	Handler
	RegisterMemberRoutes(*gin.RouterGroup)
}

type Handlers struct {
	Health       Handler
	Metrics      Handler
	Auth         Handler
	Webhook      Handler
	Billing      Handler
	Organization MemberHandler
	Admin        Handler
	Audit        Handler
}

type RouterConfig struct {
	RateLimit      middleware.RateLimiterConfig
	CORS           middleware.CORSConfig
	HSTS           bool
	RequestTimeout time.Duration
	SizeLimit      middleware.SizeLimitConfig
}

type Router struct {
	engine    *gin.Engine
	auth      *middleware.AuthMiddleware
	gate      middleware.AccessEvaluator
	metrics   *metrics.Metrics
	limiter   *middleware.RateLimiter
	handlers  Handlers
	config    RouterConfig
	gateRules middleware.GateConfig
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	gate middleware.AccessEvaluator,
	m *metrics.Metrics,
	handlers Handlers,
	config RouterConfig,
) *Router {
	engine := gin.New()

	if config.RequestTimeout <= 0 {
		config.RequestTimeout = middleware.DefaultTimeoutConfig().Duration
	}
	if config.SizeLimit.MaxBodySize <= 0 {
		config.SizeLimit = middleware.DefaultSizeLimitConfig()
	}

	r := &Router{
		engine:    engine,
		auth:      auth,
		gate:      gate,
		metrics:   m,
		limiter:   middleware.NewRateLimiter(config.RateLimit),
		handlers:  handlers,
		config:    config,
		gateRules: middleware.DefaultGateConfig(BasePath),
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		middleware.Metrics(m),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig(config.HSTS)),
		middleware.CORS(config.CORS),
		middleware.SizeLimit(config.SizeLimit),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
		middleware.ErrorHandler(),
	)

	return r
}

// Setup mounts every route under BasePath. Identity is resolved for the
// whole API so the access gate sees the selected organization; routes
// then add their own auth and role requirements.
func (r *Router) Setup() {
	api := r.engine.Group(BasePath)
	api.Use(
		middleware.Cache(middleware.NoStoreCacheConfig()),
		r.auth.Identify(),
		middleware.AccessGate(r.gate, r.gateRules, r.metrics),
	)

	r.setupOperationalRoutes(api)
	r.setupPublicRoutes(api)
	r.setupTenantRoutes(api)
	r.setupAdminRoutes(api)
}

func (r *Router) setupOperationalRoutes(rg *gin.RouterGroup) {
	r.handlers.Health.RegisterRoutes(rg)
	r.handlers.Metrics.RegisterRoutes(rg)
}

func (r *Router) setupPublicRoutes(rg *gin.RouterGroup) {
	limited := rg.Group("")
	limited.Use(r.limiter.RateLimit())

	r.handlers.Auth.RegisterRoutes(limited)
	r.handlers.Webhook.RegisterRoutes(limited)
}

func (r *Router) setupTenantRoutes(rg *gin.RouterGroup) {
	authenticated := rg.Group("")
	authenticated.Use(r.auth.RequireAuth())
	r.handlers.Organization.RegisterRoutes(authenticated)

	members := rg.Group("")
	members.Use(r.auth.RequireAuth(), r.auth.RequireOrgMember())
	r.handlers.Billing.RegisterRoutes(members)
	r.handlers.Organization.RegisterMemberRoutes(members)
}

func (r *Router) setupAdminRoutes(rg *gin.RouterGroup) {
	admin := rg.Group("/admin")
	admin.Use(r.auth.RequireAuth(), r.auth.RequireRole(model.RolePlatformAdmin))

	r.handlers.Admin.RegisterRoutes(admin)
	r.handlers.Audit.RegisterRoutes(admin)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
