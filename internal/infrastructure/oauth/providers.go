package oauth

import (
	"time"

	"github.com/LeadSpringHQ/leadspring-go/internal/domain/attribution"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/security"
	"github.com/LeadSpringHQ/leadspring-go/pkg/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
)

// hubspotEndpoint is not shipped with x/oauth2.
var hubspotEndpoint = oauth2.Endpoint{
	AuthURL:  "https://app.hubspot.com/oauth/authorize",
	TokenURL: "https://api.hubapi.com/oauth/v1/token",
}

// NewGoogleAdsManager builds the token manager for Google Ads. Google
// reports expires_in on every token response; the default TTL is a
// fallback only.
func NewGoogleAdsManager(repo attribution.ProviderConfigRepository, vault *security.Vault, logger *logging.ChanneledLogger) *TokenManager {
	return NewTokenManager(Spec{
		Provider:     attribution.ProviderGoogleAds,
		Endpoint:     google.Endpoint,
		Scopes:       []string{"https://www.googleapis.com/auth/adwords"},
		ClientID:     config.GoogleAdsClientID,
		ClientSecret: config.GoogleAdsClientSecret,
		DefaultTTL:   config.DefaultTokenTTL,
	}, repo, vault, logger)
}

// NewMicrosoftAdsManager builds the token manager for Microsoft
// Advertising. Microsoft rotates refresh tokens on every refresh and its
// expires_in is not trusted here, so a conservative fixed lifetime is
// assumed.
func NewMicrosoftAdsManager(repo attribution.ProviderConfigRepository, vault *security.Vault, logger *logging.ChanneledLogger) *TokenManager {
	return NewTokenManager(Spec{
		Provider:     attribution.ProviderMicrosoftAds,
		Endpoint:     microsoft.AzureADEndpoint("common"),
		Scopes:       []string{"https://ads.microsoft.com/msads.manage", "offline_access"},
		ClientID:     config.MicrosoftAdsClientID,
		ClientSecret: config.MicrosoftAdsClientSecret,
		DefaultTTL:   1 * time.Hour,
	}, repo, vault, logger)
}

// NewHubSpotManager builds the token manager for the HubSpot CRM. HubSpot
// requires the client secret on refresh; it is stored encrypted alongside
// the token set at connect time.
func NewHubSpotManager(repo attribution.ProviderConfigRepository, vault *security.Vault, logger *logging.ChanneledLogger) *TokenManager {
	return NewTokenManager(Spec{
		Provider:     attribution.ProviderHubSpot,
		Endpoint:     hubspotEndpoint,
		Scopes:       []string{"crm.objects.contacts.write", "crm.objects.contacts.read"},
		ClientID:     config.HubSpotClientID,
		ClientSecret: config.HubSpotClientSecret,
		DefaultTTL:   config.DefaultTokenTTL,
	}, repo, vault, logger)
}
