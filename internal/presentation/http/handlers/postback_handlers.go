package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/LeadSpringHQ/leadspring-go/internal/application/services"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/performance"
)

// PostbackHandlers contains the public postback ingest handler.
type PostbackHandlers struct {
	postbackService *services.PostbackService
	logger          *logging.ChanneledLogger
	perfTracker     *performance.Tracker
}

// NewPostbackHandlers creates postback handlers with injected dependencies.
func NewPostbackHandlers(postbackService *services.PostbackService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *PostbackHandlers {
	return &PostbackHandlers{
		postbackService: postbackService,
		logger:          logger,
		perfTracker:     perfTracker,
	}
}

// HandlePostback handles GET and POST /api/v1/postback - the public
// server-to-server conversion report. CRMs send either query strings or
// JSON bodies, so both are accepted and flattened into one field set.
func (h *PostbackHandlers) HandlePostback(c *gin.Context) {
	marker := h.perfTracker.StartOperation("postback_request")
	defer marker.Complete()

	fields := h.collectFields(c)
	req := &services.PostbackRequest{
		CorrelationKey: firstOf(fields, "visitor_id", "click_id", "clickid", "vid"),
		EventName:      firstOf(fields, "event", "event_name"),
		Currency:       fields["currency"],
		TransactionID:  firstOf(fields, "transaction_id", "txid"),
		GCLID:          fields["gclid"],
		MSCLKID:        fields["msclkid"],
		FBCLID:         fields["fbclid"],
		FBP:            fields["fbp"],
		Value:          parseAmount(fields["value"]),
		DebtAmount:     parseAmount(firstOf(fields, "debt_amount", "debtamount")),
		Revenue:        parseAmount(fields["revenue"]),
		RawFields:      fields,
	}

	resp, err := h.postbackService.HandlePostback(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			marker.SetSuccess(false)
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		h.logger.Ingest().Error("Postback processing failed", "error", err.Error())
		marker.SetError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}

	marker.SetSuccess(true)
	if resp.NotFound {
		c.JSON(http.StatusNotFound, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// collectFields flattens query params, form values, and a JSON body into
// one string map. Later sources never overwrite earlier ones; query
// params win.
func (h *PostbackHandlers) collectFields(c *gin.Context) map[string]string {
	fields := make(map[string]string)

	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 && values[0] != "" {
			fields[strings.ToLower(key)] = values[0]
		}
	}

	contentType := c.ContentType()
	switch {
	case strings.Contains(contentType, "application/json"):
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err == nil {
			for key, value := range body {
				key = strings.ToLower(key)
				if _, exists := fields[key]; exists {
					continue
				}
				if s := stringifyField(value); s != "" {
					fields[key] = s
				}
			}
		}
	case strings.Contains(contentType, "application/x-www-form-urlencoded"), strings.Contains(contentType, "multipart/form-data"):
		if err := c.Request.ParseForm(); err == nil {
			for key, values := range c.Request.PostForm {
				key = strings.ToLower(key)
				if _, exists := fields[key]; exists {
					continue
				}
				if len(values) > 0 && values[0] != "" {
					fields[key] = values[0]
				}
			}
		}
	}

	return fields
}

func stringifyField(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	case json.Number:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func firstOf(fields map[string]string, keys ...string) string {
	for _, key := range keys {
		if v := fields[key]; v != "" {
			return v
		}
	}
	return ""
}

func parseAmount(s string) float64 {
	if s == "" {
		return 0
	}
	s = strings.TrimSpace(strings.ReplaceAll(strings.TrimPrefix(s, "$"), ",", ""))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
