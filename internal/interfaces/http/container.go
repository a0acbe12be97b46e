package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/iscoin/purchase/internal/infrastructure/config"
	"github.com/iscoin/purchase/internal/infrastructure/metrics"
	"github.com/iscoin/purchase/internal/infrastructure/payment"
	"github.com/iscoin/purchase/internal/infrastructure/ratelimit"
	"github.com/iscoin/purchase/internal/interfaces/http/handlers"
	"github.com/iscoin/purchase/internal/interfaces/http/middleware"
	"github.com/iscoin/purchase/internal/shared/logger"
	"github.com/iscoin/purchase/internal/shared/utils/logutil"
)

// Container holds the infrastructure, services and handlers of the API
// process and is responsible for wiring everything together. The caller owns
// the database and Redis connections it passes in.
type Container struct {
	// Core infrastructure
	engine *gin.Engine
	db     *gorm.DB
	cfg    *config.Config
	log    logger.Interface
	redis  *redis.Client

	registry        *prometheus.Registry
	purchaseMetrics *metrics.PurchaseMetrics
	httpMetrics     *metrics.HTTPMetrics

	purchaseServices *payment.PurchaseServiceManager

	// Handlers
	purchaseHandler *handlers.PurchaseHandler
	healthHandler   *handlers.HealthHandler

	// Middlewares
	rateLimiter *middleware.RateLimiter
}

// Option customizes a Container. Tests use it to inject Redis and chain clients.
type Option func(*containerOptions)

type containerOptions struct {
	redis   *redis.Client
	clients payment.PurchaseClients
}

// WithRedis enables the exchange-rate cache and the rate limiter.
func WithRedis(client *redis.Client) Option {
	return func(o *containerOptions) { o.redis = client }
}

// WithPurchaseClients overrides the chain clients built from configuration.
func WithPurchaseClients(clients payment.PurchaseClients) Option {
	return func(o *containerOptions) { o.clients = clients }
}

// NewContainer creates a new Container with all dependencies wired together
// and routes registered.
func NewContainer(db *gorm.DB, cfg *config.Config, log logger.Interface, opts ...Option) (*Container, error) {
	var o containerOptions
	for _, opt := range opts {
		opt(&o)
	}

	c := &Container{
		engine: gin.New(),
		db:     db,
		cfg:    cfg,
		log:    log,
		redis:  o.redis,
	}

	// Section 1: Infrastructure - metrics registry, rate limiter
	c.initInfrastructure()

	// Section 2: Purchase services and handlers
	if err := c.initPurchase(o.clients); err != nil {
		return nil, err
	}

	c.setupRoutes()
	return c, nil
}

func (c *Container) initInfrastructure() {
	c.registry = prometheus.NewRegistry()
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.purchaseMetrics = metrics.NewPurchaseMetrics(c.registry)
	c.httpMetrics = metrics.NewHTTPMetrics(c.registry)

	if c.redis != nil && c.cfg.RateLimit.RequestsPerMinute > 0 {
		c.rateLimiter = middleware.NewRateLimiter(
			ratelimit.NewRedisRateLimiter(c.redis),
			ratelimit.RateLimitConfig{RequestsPerMinute: c.cfg.RateLimit.RequestsPerMinute},
			c.log.Named("ratelimit"),
		)
	}

	c.healthHandler = handlers.NewHealthHandler(c.db, c.redis, c.log)
}

func (c *Container) initPurchase(clients payment.PurchaseClients) error {
	services, err := payment.NewPurchaseServiceManager(
		c.db,
		c.redis,
		c.cfg.Purchase,
		c.cfg.Rates.CacheTTL,
		clients,
		c.purchaseMetrics,
		c.log,
	)
	if err != nil {
		return err
	}
	c.purchaseServices = services

	c.purchaseHandler = handlers.NewPurchaseHandler(
		services.RequestUtxoPurchase(),
		services.RequestAccountPurchase(),
		services.GetPurchaseStatus(),
		c.log.Named("purchase-handler"),
	)

	if c.cfg.Purchase.Settlement.APIKey != "" {
		c.log.Infow("issuer credentials loaded",
			"issuer_account", c.cfg.Purchase.Settlement.IssuerAccount,
			"api_key_prefix", logutil.MaskSecret(c.cfg.Purchase.Settlement.APIKey, 4),
		)
	}
	return nil
}

// Engine returns the Gin engine
func (c *Container) Engine() *gin.Engine {
	return c.engine
}

// PurchaseServices exposes the wired purchase flow, e.g. for an embedded reconciler.
func (c *Container) PurchaseServices() *payment.PurchaseServiceManager {
	return c.purchaseServices
}

// Registry is the Prometheus registry served on /metrics.
func (c *Container) Registry() *prometheus.Registry {
	return c.registry
}
