package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/LeadSpringHQ/leadspring-go/internal/domain/attribution"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/pkg/config"
)

const googleAdsAPIBase = "https://googleads.googleapis.com/v16"

// GoogleAdsAdapter uploads click conversions keyed by gclid to a
// configured conversion action.
type GoogleAdsAdapter struct {
	tokens     TokenSource
	logger     *logging.ChanneledLogger
	httpClient *http.Client
	apiBase    string
	customerID string
	devToken   string
}

// NewGoogleAdsAdapter creates the Google Ads channel adapter.
func NewGoogleAdsAdapter(tokens TokenSource, logger *logging.ChanneledLogger) *GoogleAdsAdapter {
	return &GoogleAdsAdapter{
		tokens:     tokens,
		logger:     logger,
		httpClient: &http.Client{Timeout: config.ProviderCallTimeout},
		apiBase:    googleAdsAPIBase,
		customerID: config.GoogleAdsCustomerID,
		devToken:   config.GoogleAdsDeveloperToken,
	}
}

// Source returns the ledger source tag.
func (a *GoogleAdsAdapter) Source() string { return attribution.SourceGoogle }

// Eligible requires a gclid and a configured conversion action.
func (a *GoogleAdsAdapter) Eligible(req *SendRequest) (bool, string) {
	if req.Config == nil || req.Config.GoogleConversionAction == "" {
		return false, "no Google conversion action configured for this event"
	}
	if req.Event.GCLID == "" {
		return false, "no gclid available"
	}
	return true, ""
}

type googleClickConversion struct {
	GCLID              string  `json:"gclid"`
	ConversionAction   string  `json:"conversionAction"`
	ConversionDateTime string  `json:"conversionDateTime"`
	ConversionValue    float64 `json:"conversionValue"`
	CurrencyCode       string  `json:"currencyCode"`
}

type googleUploadRequest struct {
	Conversions    []googleClickConversion `json:"conversions"`
	PartialFailure bool                    `json:"partialFailure"`
}

// Send uploads one click conversion.
func (a *GoogleAdsAdapter) Send(ctx context.Context, req *SendRequest) error {
	token, err := a.tokens.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}

	body := googleUploadRequest{
		Conversions: []googleClickConversion{{
			GCLID:              req.Event.GCLID,
			ConversionAction:   fmt.Sprintf("customers/%s/conversionActions/%s", a.customerID, req.Config.GoogleConversionAction),
			ConversionDateTime: req.Event.CreatedAt.UTC().Format("2006-01-02 15:04:05-07:00"),
			ConversionValue:    req.Event.Value,
			CurrencyCode:       req.Event.Currency,
		}},
		PartialFailure: true,
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/customers/%s:uploadClickConversions", a.apiBase, a.customerID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("developer-token", a.devToken)
	httpReq.Header.Set("login-customer-id", a.customerID)

	start := time.Now()
	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		a.logger.Dispatch().Error("Google Ads upload transport error", "error", err.Error(), "eventId", req.Event.ID)
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		a.logger.Dispatch().Error("Google Ads upload rejected", "status", resp.StatusCode, "eventId", req.Event.ID, "duration", time.Since(start))
		return fmt.Errorf("google ads upload rejected (%d): %s", resp.StatusCode, string(respBody))
	}

	a.logger.Dispatch().Info("Google Ads conversion uploaded", "eventId", req.Event.ID, "gclid", req.Event.GCLID, "duration", time.Since(start))
	return nil
}
