package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/iscoin/purchase/internal/shared/logger"
	"github.com/iscoin/purchase/internal/shared/utils"
	"github.com/iscoin/purchase/internal/shared/version"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandler reports whether the store and, when configured, Redis answer.
type HealthHandler struct {
	db     *gorm.DB
	redis  *redis.Client
	logger logger.Interface
}

func NewHealthHandler(db *gorm.DB, redis *redis.Client, logger logger.Interface) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, logger: logger}
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Redis    string `json:"redis,omitempty"`
	Version  string `json:"version"`
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Database: "ok", Version: version.Version}
	healthy := true

	if err := h.pingDatabase(ctx); err != nil {
		h.logger.Warnw("health check: database unreachable", "error", err)
		resp.Database = "unreachable"
		healthy = false
	}

	if h.redis != nil {
		resp.Redis = "ok"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			h.logger.Warnw("health check: redis unreachable", "error", err)
			resp.Redis = "unreachable"
			healthy = false
		}
	}

	if !healthy {
		resp.Status = "degraded"
		utils.SuccessResponse(c, http.StatusServiceUnavailable, "", resp)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", resp)
}

func (h *HealthHandler) pingDatabase(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
