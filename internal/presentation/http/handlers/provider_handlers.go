package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LeadSpringHQ/leadspring-go/internal/application/services"
	"github.com/LeadSpringHQ/leadspring-go/internal/domain/attribution"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/performance"
)

// ProviderHandlers contains the channel connect/disconnect handlers.
type ProviderHandlers struct {
	providerService *services.ProviderService
	logger          *logging.ChanneledLogger
	perfTracker     *performance.Tracker
}

// NewProviderHandlers creates provider handlers with injected dependencies.
func NewProviderHandlers(providerService *services.ProviderService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *ProviderHandlers {
	return &ProviderHandlers{
		providerService: providerService,
		logger:          logger,
		perfTracker:     perfTracker,
	}
}

// GetProviders handles GET /api/v1/providers - connection status summary.
func (h *ProviderHandlers) GetProviders(c *gin.Context) {
	statuses, err := h.providerService.Status()
	if err != nil {
		h.logger.OAuth().Error("Provider status lookup failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": statuses})
}

// GetConnect handles GET /api/v1/providers/:provider/connect - returns
// the consent URL for the admin UI to redirect to.
func (h *ProviderHandlers) GetConnect(c *gin.Context) {
	provider := attribution.Provider(c.Param("provider"))

	url, err := h.providerService.AuthorizeURL(provider)
	if err != nil {
		if errors.Is(err, services.ErrUnknownProvider) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
			return
		}
		h.logger.OAuth().Error("Authorize URL generation failed", "error", err.Error(), "provider", string(provider))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authorizeUrl": url})
}

// GetCallback handles GET /api/v1/providers/:provider/callback - the
// OAuth redirect target. Unauthenticated by necessity; the signed state
// token is the proof the flow started here.
func (h *ProviderHandlers) GetCallback(c *gin.Context) {
	marker := h.perfTracker.StartOperation("oauth_callback_request")
	defer marker.Complete()

	provider := attribution.Provider(c.Param("provider"))
	code := c.Query("code")
	state := c.Query("state")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing authorization code"})
		return
	}

	err := h.providerService.HandleCallback(c.Request.Context(), provider, code, state)
	switch {
	case errors.Is(err, services.ErrUnknownProvider):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
	case errors.Is(err, services.ErrBadState):
		marker.SetSuccess(false)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid oauth state"})
	case err != nil:
		h.logger.OAuth().Error("OAuth code exchange failed", "error", err.Error(), "provider", string(provider))
		marker.SetError(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "token exchange failed"})
	default:
		marker.SetSuccess(true)
		c.JSON(http.StatusOK, gin.H{"success": true, "provider": string(provider)})
	}
}

// PostMetaConnect handles POST /api/v1/providers/meta/connect - stores
// the pixel id and long-lived token directly.
func (h *ProviderHandlers) PostMetaConnect(c *gin.Context) {
	var body struct {
		PixelID     string `json:"pixelId" binding:"required"`
		AccessToken string `json:"accessToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pixelId and accessToken are required"})
		return
	}

	if err := h.providerService.ConnectMeta(body.PixelID, body.AccessToken); err != nil {
		h.logger.OAuth().Error("Meta connect failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteProvider handles DELETE /api/v1/providers/:provider - clears the
// stored credential set.
func (h *ProviderHandlers) DeleteProvider(c *gin.Context) {
	provider := attribution.Provider(c.Param("provider"))

	if err := h.providerService.Disconnect(provider); err != nil {
		if errors.Is(err, services.ErrUnknownProvider) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
			return
		}
		h.logger.OAuth().Error("Provider disconnect failed", "error", err.Error(), "provider", string(provider))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
