package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LeadSpringHQ/leadspring-go/internal/application/services"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/performance"
)

// VisitHandlers contains the page-view tracking handler.
type VisitHandlers struct {
	visitService *services.VisitService
	logger       *logging.ChanneledLogger
	perfTracker  *performance.Tracker
}

// NewVisitHandlers creates visit handlers with injected dependencies.
func NewVisitHandlers(visitService *services.VisitService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *VisitHandlers {
	return &VisitHandlers{
		visitService: visitService,
		logger:       logger,
		perfTracker:  perfTracker,
	}
}

// PostVisit handles POST /api/v1/visit - records a page view and returns
// the visitor id the page should carry into its lead form.
func (h *VisitHandlers) PostVisit(c *gin.Context) {
	marker := h.perfTracker.StartOperation("post_visit_request")
	defer marker.Complete()

	var body struct {
		VisitorID   string `json:"visitorId"`
		GCLID       string `json:"gclid"`
		MSCLKID     string `json:"msclkid"`
		FBCLID      string `json:"fbclid"`
		FBP         string `json:"fbp"`
		LandingPath string `json:"landingPath"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
			return
		}
	}

	// Tracking snippets pass click ids either way; query params win, the
	// body fills in the rest.
	pick := func(key, bodyValue string) string {
		if v := c.Query(key); v != "" {
			return v
		}
		return bodyValue
	}

	visitor, err := h.visitService.Track(&services.VisitRequest{
		VisitorID:   pick("visitor_id", body.VisitorID),
		GCLID:       pick("gclid", body.GCLID),
		MSCLKID:     pick("msclkid", body.MSCLKID),
		FBCLID:      pick("fbclid", body.FBCLID),
		FBP:         pick("fbp", body.FBP),
		IP:          c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
		LandingPath: pick("path", body.LandingPath),
	})
	if err != nil {
		h.logger.Identity().Error("Visit tracking failed", "error", err.Error())
		marker.SetError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, gin.H{
		"visitorId": visitor.ID,
		"converted": visitor.Converted,
	})
}
