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

const microsoftAdsAPIBase = "https://campaign.api.bingads.microsoft.com/CampaignManagement/v13"

// MicrosoftAdsAdapter applies offline conversions keyed by msclkid.
type MicrosoftAdsAdapter struct {
	tokens     TokenSource
	logger     *logging.ChanneledLogger
	httpClient *http.Client
	apiBase    string
	accountID  string
}

// NewMicrosoftAdsAdapter creates the Microsoft Advertising channel adapter.
func NewMicrosoftAdsAdapter(tokens TokenSource, logger *logging.ChanneledLogger) *MicrosoftAdsAdapter {
	return &MicrosoftAdsAdapter{
		tokens:     tokens,
		logger:     logger,
		httpClient: &http.Client{Timeout: config.ProviderCallTimeout},
		apiBase:    microsoftAdsAPIBase,
		accountID:  config.MicrosoftAdsAccountID,
	}
}

// Source returns the ledger source tag.
func (a *MicrosoftAdsAdapter) Source() string { return attribution.SourceMicrosoft }

// Eligible requires the routing flag and an msclkid.
func (a *MicrosoftAdsAdapter) Eligible(req *SendRequest) (bool, string) {
	if req.Config == nil || !req.Config.MicrosoftEnabled {
		return false, "Microsoft forwarding not enabled for this event"
	}
	if req.Event.MSCLKID == "" {
		return false, "no msclkid available"
	}
	return true, ""
}

type microsoftOfflineConversion struct {
	MicrosoftClickID       string  `json:"MicrosoftClickId"`
	ConversionName         string  `json:"ConversionName"`
	ConversionTime         string  `json:"ConversionTime"`
	ConversionValue        float64 `json:"ConversionValue"`
	ConversionCurrencyCode string  `json:"ConversionCurrencyCode"`
}

type microsoftApplyRequest struct {
	OfflineConversions []microsoftOfflineConversion `json:"OfflineConversions"`
	AccountID          string                       `json:"AccountId"`
}

// Send applies one offline conversion.
func (a *MicrosoftAdsAdapter) Send(ctx context.Context, req *SendRequest) error {
	token, err := a.tokens.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}

	goalName := req.Config.MicrosoftGoalName
	if goalName == "" {
		goalName = req.Event.EventName
	}

	body := microsoftApplyRequest{
		OfflineConversions: []microsoftOfflineConversion{{
			MicrosoftClickID:       req.Event.MSCLKID,
			ConversionName:         goalName,
			ConversionTime:         req.Event.CreatedAt.UTC().Format(time.RFC3339),
			ConversionValue:        req.Event.Value,
			ConversionCurrencyCode: req.Event.Currency,
		}},
		AccountID: a.accountID,
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := a.apiBase + "/OfflineConversions/Apply"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		a.logger.Dispatch().Error("Microsoft Ads apply transport error", "error", err.Error(), "eventId", req.Event.ID)
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		a.logger.Dispatch().Error("Microsoft Ads apply rejected", "status", resp.StatusCode, "eventId", req.Event.ID, "duration", time.Since(start))
		return fmt.Errorf("microsoft ads apply rejected (%d): %s", resp.StatusCode, string(respBody))
	}

	a.logger.Dispatch().Info("Microsoft Ads conversion applied", "eventId", req.Event.ID, "msclkid", req.Event.MSCLKID, "duration", time.Since(start))
	return nil
}
