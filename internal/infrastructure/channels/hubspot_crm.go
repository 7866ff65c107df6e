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
	"github.com/LeadSpringHQ/leadspring-go/internal/domain/user"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/pkg/config"
)

const hubspotAPIBase = "https://api.hubapi.com"

// HubSpotAdapter pushes resolved leads into the CRM as contacts. The
// cross-reference id is recorded at most once; an already-pushed lead is
// terminal for this channel.
type HubSpotAdapter struct {
	tokens     TokenSource
	leads      user.LeadRepository
	logger     *logging.ChanneledLogger
	httpClient *http.Client
	apiBase    string
}

// NewHubSpotAdapter creates the HubSpot CRM channel adapter.
func NewHubSpotAdapter(tokens TokenSource, leads user.LeadRepository, logger *logging.ChanneledLogger) *HubSpotAdapter {
	return &HubSpotAdapter{
		tokens:     tokens,
		leads:      leads,
		logger:     logger,
		httpClient: &http.Client{Timeout: config.ProviderCallTimeout},
		apiBase:    hubspotAPIBase,
	}
}

// Source returns the ledger source tag.
func (a *HubSpotAdapter) Source() string { return attribution.SourceCRM }

// Eligible requires a resolved lead that has not been pushed yet.
func (a *HubSpotAdapter) Eligible(req *SendRequest) (bool, string) {
	if req.Lead == nil {
		return false, "no lead resolved for CRM push"
	}
	if req.Lead.CRMContactID != "" {
		return false, "lead already pushed to CRM"
	}
	return true, ""
}

type hubspotContactRequest struct {
	Properties map[string]string `json:"properties"`
}

type hubspotContactResponse struct {
	ID string `json:"id"`
}

// Send creates the contact and records the cross-reference id.
func (a *HubSpotAdapter) Send(ctx context.Context, req *SendRequest) error {
	token, err := a.tokens.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}

	lead := req.Lead
	properties := map[string]string{
		"firstname": lead.FirstName,
		"lastname":  lead.LastName,
		"email":     lead.Email,
		"phone":     lead.Phone,
	}
	if lead.Status != "" {
		properties["hs_lead_status"] = lead.Status
	}
	if lead.Stage != "" {
		properties["lifecyclestage"] = lead.Stage
	}
	for key, value := range lead.Extra {
		properties[key] = value
	}

	raw, err := json.Marshal(hubspotContactRequest{Properties: properties})
	if err != nil {
		return err
	}

	url := a.apiBase + "/crm/v3/objects/contacts"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		a.logger.Dispatch().Error("HubSpot contact create transport error", "error", err.Error(), "leadId", lead.ID)
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		a.logger.Dispatch().Error("HubSpot contact create rejected", "status", resp.StatusCode, "leadId", lead.ID, "duration", time.Since(start))
		return fmt.Errorf("hubspot contact create rejected (%d): %s", resp.StatusCode, string(respBody))
	}

	var created hubspotContactResponse
	if err := json.Unmarshal(respBody, &created); err == nil && created.ID != "" {
		if err := a.leads.SetCRMContactID(lead.ID, created.ID); err != nil {
			a.logger.Dispatch().Error("Failed to record CRM contact id", "error", err.Error(), "leadId", lead.ID)
		}
	}

	a.logger.Dispatch().Info("Lead pushed to HubSpot", "leadId", lead.ID, "contactId", created.ID, "duration", time.Since(start))
	return nil
}
