package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LeadSpringHQ/leadspring-go/internal/application/services"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
)

// BlocklistHandlers contains the IP blocklist CRUD handlers.
type BlocklistHandlers struct {
	blocklistService *services.BlocklistService
	logger           *logging.ChanneledLogger
}

// NewBlocklistHandlers creates blocklist handlers with injected dependencies.
func NewBlocklistHandlers(blocklistService *services.BlocklistService, logger *logging.ChanneledLogger) *BlocklistHandlers {
	return &BlocklistHandlers{blocklistService: blocklistService, logger: logger}
}

// GetBlocklist handles GET /api/v1/blocklist.
func (h *BlocklistHandlers) GetBlocklist(c *gin.Context) {
	entries, err := h.blocklistService.List()
	if err != nil {
		h.logger.Identity().Error("Blocklist listing failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocked": entries})
}

// PostBlocklist handles POST /api/v1/blocklist.
func (h *BlocklistHandlers) PostBlocklist(c *gin.Context) {
	var body struct {
		IP     string `json:"ip" binding:"required"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ip is required"})
		return
	}

	if err := h.blocklistService.Add(body.IP, body.Reason); err != nil {
		h.respondBlocklistError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteBlocklist handles DELETE /api/v1/blocklist/:ip.
func (h *BlocklistHandlers) DeleteBlocklist(c *gin.Context) {
	if err := h.blocklistService.Remove(c.Param("ip")); err != nil {
		h.respondBlocklistError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *BlocklistHandlers) respondBlocklistError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrInvalidIP) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.logger.Identity().Error("Blocklist operation failed", "error", err.Error())
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
