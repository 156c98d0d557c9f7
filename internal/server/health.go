package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger reports backing-store connectivity. *store.DB satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker serves the liveness and readiness probes. Liveness only
// confirms the process answers; readiness also requires a database ping.
type HealthChecker struct {
	db Pinger
}

// NewHealthChecker creates a HealthChecker backed by the given store.
func NewHealthChecker(db Pinger) *HealthChecker {
	return &HealthChecker{db: db}
}

// Live handles GET /healthz.
func (h *HealthChecker) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles GET /readyz.
func (h *HealthChecker) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  "database unreachable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
