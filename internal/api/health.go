package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Check probes one dependency
type Check func(ctx context.Context) error

// Health answers liveness and readiness probes
type Health struct {
	checks  map[string]Check
	timeout time.Duration
	log     *zap.Logger
}

// NewHealth creates a Health running checks on readiness probes
func NewHealth(checks map[string]Check, log *zap.Logger) *Health {
	if log == nil {
		log = zap.NewNop()
	}
	return &Health{checks: checks, timeout: 2 * time.Second, log: log}
}

// RegisterRoutes mounts /health and /ready
func (h *Health) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", h.Live)
	r.GET("/ready", h.Ready)
}

// Live reports that the process serves requests
func (h *Health) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
}

// Ready runs every check and answers 503 when one fails
func (h *Health) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "unavailable"
	}
	c.JSON(status, gin.H{"status": state, "checks": results})
}
