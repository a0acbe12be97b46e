package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iscoin/purchase/internal/interfaces/http/middleware"
)

// setupRoutes configures all HTTP routes
func (c *Container) setupRoutes() {
	c.engine.Use(middleware.CustomLogger(c.log))
	c.engine.Use(middleware.Recovery(c.log))
	c.engine.Use(middleware.Metrics(c.httpMetrics))
	c.engine.Use(middleware.SecurityHeaders())

	c.engine.GET("/health", c.healthHandler.HealthCheck)
	c.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})))

	c.setupPurchaseRoutes()
}

// setupPurchaseRoutes configures the purchase API
func (c *Container) setupPurchaseRoutes() {
	// Only purchase creation is rate limited; status reads are cheap.
	var limit []gin.HandlerFunc
	if c.rateLimiter != nil {
		limit = append(limit, c.rateLimiter.Limit())
	}

	purchases := c.engine.Group("/api/v1/purchases")
	{
		purchases.POST("/utxo", append(limit, c.purchaseHandler.RequestUtxoPurchase)...)
		purchases.POST("/account", append(limit, c.purchaseHandler.RequestAccountPurchase)...)
		purchases.GET("/:account", c.purchaseHandler.GetPurchaseStatus)
	}
}
