// Package oauth owns the access/refresh token lifecycle for the external
// providers. One TokenManager per provider; persisting refreshed
// credentials here is the only token mutation path outside the initial
// connect handshake.
package oauth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/LeadSpringHQ/leadspring-go/internal/domain/attribution"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/security"
	"github.com/LeadSpringHQ/leadspring-go/pkg/config"
	"golang.org/x/oauth2"
)

var (
	// ErrNotConnected is returned when no credential set is stored.
	ErrNotConnected = errors.New("provider not connected")
	// ErrNoRefreshToken is returned when the stored refresh token is
	// missing or undecryptable.
	ErrNoRefreshToken = errors.New("no usable refresh token")
)

// Spec describes one provider's OAuth semantics.
type Spec struct {
	Provider     attribution.Provider
	Endpoint     oauth2.Endpoint
	Scopes       []string
	ClientID     string
	ClientSecret string
	// DefaultTTL is assumed when the provider's token response omits
	// expires_in.
	DefaultTTL time.Duration
}

// TokenManager implements refresh-before-expiry for a single provider.
type TokenManager struct {
	spec       Spec
	repo       attribution.ProviderConfigRepository
	vault      *security.Vault
	logger     *logging.ChanneledLogger
	skew       time.Duration
	httpClient *http.Client
}

// NewTokenManager creates a token manager for one provider.
func NewTokenManager(spec Spec, repo attribution.ProviderConfigRepository, vault *security.Vault, logger *logging.ChanneledLogger) *TokenManager {
	return &TokenManager{
		spec:   spec,
		repo:   repo,
		vault:  vault,
		logger: logger,
		skew:   config.TokenExpirySkew,
		httpClient: &http.Client{
			Timeout: config.ProviderCallTimeout,
		},
	}
}

// Provider returns the provider this manager owns.
func (m *TokenManager) Provider() attribution.Provider {
	return m.spec.Provider
}

// AccessToken returns a valid access token, refreshing it first when it
// expires within the skew window. Any failure returns an error the caller
// must treat as channel-unavailable; stored credentials are left
// untouched on failure.
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	cfg, err := m.repo.Find(m.spec.Provider)
	if err != nil {
		return "", err
	}
	if cfg == nil || !cfg.Connected() || !cfg.Enabled {
		return "", ErrNotConnected
	}

	accessToken, err := m.vault.Decrypt(cfg.AccessTokenEnc)
	if err != nil {
		m.logger.OAuth().Error("Stored access token failed to decrypt", "provider", m.spec.Provider, "error", err.Error())
		accessToken = "" // force a refresh attempt
	}

	if accessToken != "" && cfg.TokenExpiry != nil && time.Now().Add(m.skew).Before(*cfg.TokenExpiry) {
		return accessToken, nil
	}

	return m.refresh(ctx, cfg)
}

// refresh exchanges the stored refresh token for a new access token and
// persists the re-encrypted result.
func (m *TokenManager) refresh(ctx context.Context, cfg *attribution.ProviderConfig) (string, error) {
	start := time.Now()
	m.logger.OAuth().Debug("Refreshing provider token", "provider", m.spec.Provider)

	refreshToken, err := m.vault.Decrypt(cfg.RefreshTokenEnc)
	if err != nil || refreshToken == "" {
		m.logger.OAuth().Error("No usable refresh token", "provider", m.spec.Provider)
		return "", ErrNoRefreshToken
	}

	clientSecret := m.spec.ClientSecret
	if cfg.ClientSecretEnc != "" {
		if secret, err := m.vault.Decrypt(cfg.ClientSecretEnc); err == nil && secret != "" {
			clientSecret = secret
		}
	}

	oauthCfg := &oauth2.Config{
		ClientID:     m.clientID(cfg),
		ClientSecret: clientSecret,
		Endpoint:     m.spec.Endpoint,
		Scopes:       m.spec.Scopes,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	token, err := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		m.logger.OAuth().Error("Token refresh failed", "provider", m.spec.Provider, "error", err.Error(), "duration", time.Since(start))
		return "", err
	}

	expiry := token.Expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(m.spec.DefaultTTL)
	}

	accessEnc, err := m.vault.Encrypt(token.AccessToken)
	if err != nil {
		return "", err
	}

	// Persist the rotated refresh token only when the provider issued a
	// new one; silently invalidated refresh tokens have no detection path.
	var refreshEnc string
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		if refreshEnc, err = m.vault.Encrypt(token.RefreshToken); err != nil {
			return "", err
		}
	}

	if err := m.repo.UpdateTokens(m.spec.Provider, accessEnc, refreshEnc, expiry); err != nil {
		return "", err
	}

	m.logger.OAuth().Info("Provider token refreshed", "provider", m.spec.Provider, "expiry", expiry, "duration", time.Since(start))
	return token.AccessToken, nil
}

// AuthCodeURL builds the provider's authorization URL for the admin
// connect flow.
func (m *TokenManager) AuthCodeURL(state string) string {
	return m.oauthConfig().AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange swaps the callback code for a token set and persists it
// encrypted. This is the initial OAuth handshake.
func (m *TokenManager) Exchange(ctx context.Context, code string) error {
	start := time.Now()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	token, err := m.oauthConfig().Exchange(ctx, code)
	if err != nil {
		m.logger.OAuth().Error("Authorization code exchange failed", "provider", m.spec.Provider, "error", err.Error())
		return err
	}

	accessEnc, err := m.vault.Encrypt(token.AccessToken)
	if err != nil {
		return err
	}
	refreshEnc, err := m.vault.Encrypt(token.RefreshToken)
	if err != nil {
		return err
	}
	secretEnc, err := m.vault.Encrypt(m.spec.ClientSecret)
	if err != nil {
		return err
	}

	expiry := token.Expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(m.spec.DefaultTTL)
	}
	now := time.Now().UTC()

	cfg := &attribution.ProviderConfig{
		Provider:        m.spec.Provider,
		AccessTokenEnc:  accessEnc,
		RefreshTokenEnc: refreshEnc,
		ClientSecretEnc: secretEnc,
		ClientID:        m.spec.ClientID,
		TokenExpiry:     &expiry,
		ConnectedAt:     &now,
		Enabled:         true,
	}
	if err := m.repo.Upsert(cfg); err != nil {
		return err
	}

	m.logger.OAuth().Info("Provider connected", "provider", m.spec.Provider, "duration", time.Since(start))
	return nil
}

// Disconnect clears the stored credential set.
func (m *TokenManager) Disconnect() error {
	return m.repo.Disconnect(m.spec.Provider)
}

func (m *TokenManager) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     m.spec.ClientID,
		ClientSecret: m.spec.ClientSecret,
		Endpoint:     m.spec.Endpoint,
		Scopes:       m.spec.Scopes,
		RedirectURL:  config.OAuthRedirectBase + "/api/v1/providers/" + string(m.spec.Provider) + "/callback",
	}
}

func (m *TokenManager) clientID(cfg *attribution.ProviderConfig) string {
	if cfg.ClientID != "" {
		return cfg.ClientID
	}
	return m.spec.ClientID
}
