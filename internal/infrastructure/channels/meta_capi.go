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
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/security"
	"github.com/LeadSpringHQ/leadspring-go/pkg/config"
)

const metaGraphAPIBase = "https://graph.facebook.com/v18.0"

// MetaAdapter sends server events to the Meta Conversions API. Meta has
// no refresh flow; its long-lived token lives encrypted in the provider
// config row and is decrypted per send.
type MetaAdapter struct {
	providers  attribution.ProviderConfigRepository
	vault      *security.Vault
	logger     *logging.ChanneledLogger
	httpClient *http.Client
	apiBase    string
}

// NewMetaAdapter creates the Meta Conversions API channel adapter.
func NewMetaAdapter(providers attribution.ProviderConfigRepository, vault *security.Vault, logger *logging.ChanneledLogger) *MetaAdapter {
	return &MetaAdapter{
		providers:  providers,
		vault:      vault,
		logger:     logger,
		httpClient: &http.Client{Timeout: config.ProviderCallTimeout},
		apiBase:    metaGraphAPIBase,
	}
}

// Source returns the ledger source tag.
func (a *MetaAdapter) Source() string { return attribution.SourceMeta }

// Eligible requires only the routing flag; Meta matches on fbc/fbp or
// contact data, not on a mandatory click id.
func (a *MetaAdapter) Eligible(req *SendRequest) (bool, string) {
	if req.Config == nil || !req.Config.MetaEnabled {
		return false, "Meta forwarding not enabled for this event"
	}
	return true, ""
}

type metaUserData struct {
	FBC             string `json:"fbc,omitempty"`
	FBP             string `json:"fbp,omitempty"`
	ClientIPAddress string `json:"client_ip_address,omitempty"`
	ClientUserAgent string `json:"client_user_agent,omitempty"`
}

type metaCustomData struct {
	Value    float64 `json:"value,omitempty"`
	Currency string  `json:"currency,omitempty"`
}

type metaServerEvent struct {
	EventName    string         `json:"event_name"`
	EventTime    int64          `json:"event_time"`
	ActionSource string         `json:"action_source"`
	EventID      string         `json:"event_id"`
	UserData     metaUserData   `json:"user_data"`
	CustomData   metaCustomData `json:"custom_data"`
}

type metaEventsRequest struct {
	Data []metaServerEvent `json:"data"`
}

// BuildPayload composes the server event body. It is exported so the
// ingest path can snapshot the richest channel payload onto the ledger
// row even when the Meta channel is not sent.
func (a *MetaAdapter) BuildPayload(req *SendRequest) metaEventsRequest {
	eventName := req.Event.EventName
	if req.Config != nil && req.Config.MetaEventName != "" {
		eventName = req.Config.MetaEventName
	}

	var fbc string
	if req.Event.FBCLID != "" {
		fbc = fmt.Sprintf("fb.1.%d.%s", req.Event.CreatedAt.UnixMilli(), req.Event.FBCLID)
	}

	userData := metaUserData{
		FBC:             fbc,
		FBP:             req.Event.FBP,
		ClientIPAddress: req.ClientIP,
		ClientUserAgent: req.ClientUserAgent,
	}

	return metaEventsRequest{
		Data: []metaServerEvent{{
			EventName:    eventName,
			EventTime:    req.Event.CreatedAt.Unix(),
			ActionSource: "website",
			EventID:      req.Event.ID,
			UserData:     userData,
			CustomData: metaCustomData{
				Value:    req.Event.Value,
				Currency: req.Event.Currency,
			},
		}},
	}
}

// Send posts one server event to the pixel's event endpoint.
func (a *MetaAdapter) Send(ctx context.Context, req *SendRequest) error {
	cfg, err := a.providers.Find(attribution.ProviderMeta)
	if err != nil {
		return err
	}
	if cfg == nil || !cfg.Connected() || !cfg.Enabled {
		return fmt.Errorf("%w: meta not connected", ErrChannelUnavailable)
	}

	token, err := a.vault.Decrypt(cfg.AccessTokenEnc)
	if err != nil || token == "" {
		a.logger.Dispatch().Error("Meta access token failed to decrypt", "eventId", req.Event.ID)
		return fmt.Errorf("%w: meta token undecryptable", ErrChannelUnavailable)
	}

	raw, err := json.Marshal(a.BuildPayload(req))
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s/events?access_token=%s", a.apiBase, cfg.AccountID, token)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		a.logger.Dispatch().Error("Meta CAPI transport error", "error", err.Error(), "eventId", req.Event.ID)
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		a.logger.Dispatch().Error("Meta CAPI rejected", "status", resp.StatusCode, "eventId", req.Event.ID, "duration", time.Since(start))
		return fmt.Errorf("meta capi rejected (%d): %s", resp.StatusCode, string(respBody))
	}

	a.logger.Dispatch().Info("Meta server event sent", "eventId", req.Event.ID, "duration", time.Since(start))
	return nil
}
