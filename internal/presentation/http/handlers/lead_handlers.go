package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LeadSpringHQ/leadspring-go/internal/application/services"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/performance"
)

// LeadHandlers contains the lead submission handler.
type LeadHandlers struct {
	leadService *services.LeadService
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewLeadHandlers creates lead handlers with injected dependencies.
func NewLeadHandlers(leadService *services.LeadService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *LeadHandlers {
	return &LeadHandlers{
		leadService: leadService,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// PostLead handles POST /api/v1/leads - the lead form submission. The
// response's channel flags reflect the resolved auto-event sends.
func (h *LeadHandlers) PostLead(c *gin.Context) {
	marker := h.perfTracker.StartOperation("post_lead_request")
	defer marker.Complete()

	var body struct {
		VisitorID  string            `json:"visitorId"`
		FirstName  string            `json:"firstName"`
		LastName   string            `json:"lastName"`
		Email      string            `json:"email"`
		Phone      string            `json:"phone"`
		GCLID      string            `json:"gclid"`
		MSCLKID    string            `json:"msclkid"`
		FBCLID     string            `json:"fbclid"`
		FBP        string            `json:"fbp"`
		DebtAmount float64           `json:"debtAmount"`
		Extra      map[string]string `json:"extra"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
		return
	}

	result, err := h.leadService.Submit(c.Request.Context(), &services.LeadSubmission{
		VisitorID:       body.VisitorID,
		FirstName:       body.FirstName,
		LastName:        body.LastName,
		Email:           body.Email,
		Phone:           body.Phone,
		GCLID:           body.GCLID,
		MSCLKID:         body.MSCLKID,
		FBCLID:          body.FBCLID,
		FBP:             body.FBP,
		DebtAmount:      body.DebtAmount,
		Extra:           body.Extra,
		ClientIP:        c.ClientIP(),
		ClientUserAgent: c.Request.UserAgent(),
		LandingPath:     c.GetHeader("Referer"),
	})
	if err != nil {
		if errors.Is(err, services.ErrLeadValidation) {
			marker.SetSuccess(false)
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		h.logger.Ingest().Error("Lead submission failed", "error", err.Error())
		marker.SetError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, result)
}
