package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/persistence/database"
)

// HealthHandlers contains the liveness endpoint.
type HealthHandlers struct {
	db *database.DB
}

// NewHealthHandlers creates health handlers with injected dependencies.
func NewHealthHandlers(db *database.DB) *HealthHandlers {
	return &HealthHandlers{db: db}
}

// GetHealth handles GET /api/v1/health - process and database liveness.
func (h *HealthHandlers) GetHealth(c *gin.Context) {
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "degraded",
			"database": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
