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

// PostbackConfigHandlers contains the routing-config CRUD handlers.
type PostbackConfigHandlers struct {
	configService *services.PostbackConfigService
	logger        *logging.ChanneledLogger
	perfTracker   *performance.Tracker
}

// NewPostbackConfigHandlers creates routing-config handlers with
// injected dependencies.
func NewPostbackConfigHandlers(configService *services.PostbackConfigService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *PostbackConfigHandlers {
	return &PostbackConfigHandlers{
		configService: configService,
		logger:        logger,
		perfTracker:   perfTracker,
	}
}

type postbackConfigBody struct {
	EventName              string `json:"eventName" binding:"required"`
	GoogleConversionAction string `json:"googleConversionAction"`
	MicrosoftEnabled       bool   `json:"microsoftEnabled"`
	MicrosoftGoalName      string `json:"microsoftGoalName"`
	MetaEnabled            bool   `json:"metaEnabled"`
	MetaEventName          string `json:"metaEventName"`
	Active                 bool   `json:"active"`
}

func (b *postbackConfigBody) toConfig() *attribution.PostbackConfig {
	return &attribution.PostbackConfig{
		EventName:              b.EventName,
		GoogleConversionAction: b.GoogleConversionAction,
		MicrosoftEnabled:       b.MicrosoftEnabled,
		MicrosoftGoalName:      b.MicrosoftGoalName,
		MetaEnabled:            b.MetaEnabled,
		MetaEventName:          b.MetaEventName,
		Active:                 b.Active,
	}
}

// GetConfigs handles GET /api/v1/postback-configs.
func (h *PostbackConfigHandlers) GetConfigs(c *gin.Context) {
	configs, err := h.configService.List()
	if err != nil {
		h.logger.System().Error("Postback config listing failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"configs": configs})
}

// GetConfig handles GET /api/v1/postback-configs/:id.
func (h *PostbackConfigHandlers) GetConfig(c *gin.Context) {
	cfg, err := h.configService.Get(c.Param("id"))
	if err != nil {
		h.respondConfigError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// PostConfig handles POST /api/v1/postback-configs.
func (h *PostbackConfigHandlers) PostConfig(c *gin.Context) {
	var body postbackConfigBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	cfg, err := h.configService.Create(body.toConfig())
	if err != nil {
		h.respondConfigError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

// PutConfig handles PUT /api/v1/postback-configs/:id.
func (h *PostbackConfigHandlers) PutConfig(c *gin.Context) {
	var body postbackConfigBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	cfg, err := h.configService.Update(c.Param("id"), body.toConfig())
	if err != nil {
		h.respondConfigError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// DeleteConfig handles DELETE /api/v1/postback-configs/:id.
func (h *PostbackConfigHandlers) DeleteConfig(c *gin.Context) {
	if err := h.configService.Delete(c.Param("id")); err != nil {
		h.respondConfigError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *PostbackConfigHandlers) respondConfigError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrConfigNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrEventNameTaken), errors.Is(err, services.ErrEventNameRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.System().Error("Postback config operation failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
