package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReadinessCheck reporta si las dependencias externas responden.
type ReadinessCheck func(ctx context.Context) error

// HealthHandler expone /health y /ready.
type HealthHandler struct {
	logger  *zap.Logger
	app     string
	version string
	ready   ReadinessCheck
}

func NewHealthHandler(logger *zap.Logger, app, version string, ready ReadinessCheck) *HealthHandler {
	return &HealthHandler{logger: logger, app: app, version: version, ready: ready}
}

// Health maneja GET /health; no consulta dependencias.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "app": h.app, "version": h.version})
}

// Ready maneja GET /ready.
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.ready != nil {
		if err := h.ready(c.Request.Context()); err != nil {
			h.logger.Warn("readiness check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
