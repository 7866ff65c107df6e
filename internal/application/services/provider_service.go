package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/LeadSpringHQ/leadspring-go/internal/domain/attribution"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/oauth"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/security"
	"github.com/LeadSpringHQ/leadspring-go/pkg/config"
)

var (
	// ErrUnknownProvider means the path segment names no managed provider.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrBadState rejects a callback whose state token fails validation.
	ErrBadState = errors.New("invalid or expired oauth state")
)

// ProviderStatus is one provider's connection summary for the admin UI.
type ProviderStatus struct {
	Provider    attribution.Provider `json:"provider"`
	Connected   bool                 `json:"connected"`
	Enabled     bool                 `json:"enabled"`
	AccountID   string               `json:"accountId,omitempty"`
	ConnectedAt *time.Time           `json:"connectedAt,omitempty"`
	TokenExpiry *time.Time           `json:"tokenExpiry,omitempty"`
}

// ProviderService drives the OAuth connect flows and the Meta direct
// connect.
type ProviderService struct {
	managers  map[attribution.Provider]*oauth.TokenManager
	providers attribution.ProviderConfigRepository
	vault     *security.Vault
	logger    *logging.ChanneledLogger
}

// NewProviderService creates a new provider connection service.
func NewProviderService(providers attribution.ProviderConfigRepository, vault *security.Vault, logger *logging.ChanneledLogger, managers ...*oauth.TokenManager) *ProviderService {
	s := &ProviderService{
		managers:  make(map[attribution.Provider]*oauth.TokenManager, len(managers)),
		providers: providers,
		vault:     vault,
		logger:    logger,
	}
	for _, m := range managers {
		s.managers[m.Provider()] = m
	}
	return s
}

// Manager returns the token manager for a provider, nil when none.
func (s *ProviderService) Manager(provider attribution.Provider) *oauth.TokenManager {
	return s.managers[provider]
}

// AuthorizeURL builds the provider's consent URL with a short-lived
// signed state token.
func (s *ProviderService) AuthorizeURL(provider attribution.Provider) (string, error) {
	manager, ok := s.managers[provider]
	if !ok {
		return "", ErrUnknownProvider
	}

	state, err := s.mintState(provider)
	if err != nil {
		return "", err
	}
	return manager.AuthCodeURL(state), nil
}

// HandleCallback validates the state token and exchanges the code for a
// persisted, encrypted credential set.
func (s *ProviderService) HandleCallback(ctx context.Context, provider attribution.Provider, code, state string) error {
	manager, ok := s.managers[provider]
	if !ok {
		return ErrUnknownProvider
	}
	if err := s.validateState(provider, state); err != nil {
		return err
	}
	if err := manager.Exchange(ctx, code); err != nil {
		return err
	}
	s.logger.OAuth().Info("Provider connected", "provider", string(provider))
	return nil
}

// ConnectMeta stores the pixel id and long-lived access token directly;
// Meta has no refresh flow here.
func (s *ProviderService) ConnectMeta(pixelID, accessToken string) error {
	if pixelID == "" || accessToken == "" {
		return fmt.Errorf("pixel id and access token are required")
	}

	tokenEnc, err := s.vault.Encrypt(accessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt meta access token: %w", err)
	}

	now := time.Now().UTC()
	cfg := &attribution.ProviderConfig{
		Provider:       attribution.ProviderMeta,
		AccessTokenEnc: tokenEnc,
		AccountID:      pixelID,
		ConnectedAt:    &now,
		Enabled:        true,
	}
	if err := s.providers.Upsert(cfg); err != nil {
		return err
	}
	s.logger.OAuth().Info("Provider connected", "provider", string(attribution.ProviderMeta), "pixelId", pixelID)
	return nil
}

// Disconnect clears a provider's stored credential set.
func (s *ProviderService) Disconnect(provider attribution.Provider) error {
	switch provider {
	case attribution.ProviderGoogleAds, attribution.ProviderMicrosoftAds, attribution.ProviderHubSpot, attribution.ProviderMeta:
	default:
		return ErrUnknownProvider
	}
	if err := s.providers.Disconnect(provider); err != nil {
		return err
	}
	s.logger.OAuth().Info("Provider disconnected", "provider", string(provider))
	return nil
}

// Status summarizes every provider's connection for the admin UI.
func (s *ProviderService) Status() ([]ProviderStatus, error) {
	all := []attribution.Provider{
		attribution.ProviderGoogleAds,
		attribution.ProviderMicrosoftAds,
		attribution.ProviderMeta,
		attribution.ProviderHubSpot,
	}

	statuses := make([]ProviderStatus, 0, len(all))
	for _, provider := range all {
		status := ProviderStatus{Provider: provider}
		cfg, err := s.providers.Find(provider)
		if err != nil {
			return nil, err
		}
		if cfg != nil {
			status.Connected = cfg.Connected()
			status.Enabled = cfg.Enabled
			status.AccountID = cfg.AccountID
			status.ConnectedAt = cfg.ConnectedAt
			status.TokenExpiry = cfg.TokenExpiry
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// mintState signs a short-lived token naming the provider, so the
// callback can reject forged or stale redirects.
func (s *ProviderService) mintState(provider attribution.Provider) (string, error) {
	claims := jwt.MapClaims{
		"provider": string(provider),
		"type":     "oauth_state",
		"exp":      time.Now().Add(10 * time.Minute).Unix(),
		"iat":      time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.JWTSecret))
}

func (s *ProviderService) validateState(provider attribution.Provider, state string) error {
	claims, err := security.ValidateJWT(state, config.JWTSecret)
	if err != nil {
		return ErrBadState
	}
	if claims["type"] != "oauth_state" || claims["provider"] != string(provider) {
		return ErrBadState
	}
	return nil
}
