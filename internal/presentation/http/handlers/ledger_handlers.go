package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/LeadSpringHQ/leadspring-go/internal/application/services"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/performance"
)

// LedgerHandlers contains the admin ledger listing and retry handlers.
type LedgerHandlers struct {
	ledgerService *services.LedgerService
	logger        *logging.ChanneledLogger
	perfTracker   *performance.Tracker
}

// NewLedgerHandlers creates ledger handlers with injected dependencies.
func NewLedgerHandlers(ledgerService *services.LedgerService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *LedgerHandlers {
	return &LedgerHandlers{
		ledgerService: ledgerService,
		logger:        logger,
		perfTracker:   perfTracker,
	}
}

// GetEvents handles GET /api/v1/events - paginated ledger listing,
// newest first, with lead contact fields joined.
func (h *LedgerHandlers) GetEvents(c *gin.Context) {
	marker := h.perfTracker.StartOperation("get_events_request")
	defer marker.Complete()

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	page, err := h.ledgerService.List(limit, offset)
	if err != nil {
		h.logger.System().Error("Ledger listing failed", "error", err.Error())
		marker.SetError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, page)
}

// PostRetry handles POST /api/v1/events/:id/retry - re-invokes the failed
// row's channel adapter.
func (h *LedgerHandlers) PostRetry(c *gin.Context) {
	marker := h.perfTracker.StartOperation("post_retry_request")
	defer marker.Complete()

	result, err := h.ledgerService.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEventNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrNotRetriable), errors.Is(err, services.ErrMissingClickID):
			marker.SetSuccess(false)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Dispatch().Error("Ledger retry failed", "error", err.Error(), "eventId", c.Param("id"))
			marker.SetError(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	marker.SetSuccess(result.Error == "")
	c.JSON(http.StatusOK, result)
}
