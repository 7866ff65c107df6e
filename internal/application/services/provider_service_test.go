package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/LeadSpringHQ/leadspring-go/internal/domain/attribution"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/oauth"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/security"
)

type fakeProviderConfigRepo struct {
	mu      sync.Mutex
	configs map[attribution.Provider]*attribution.ProviderConfig
}

func newFakeProviderConfigRepo() *fakeProviderConfigRepo {
	return &fakeProviderConfigRepo{configs: make(map[attribution.Provider]*attribution.ProviderConfig)}
}

func (r *fakeProviderConfigRepo) Find(provider attribution.Provider) (*attribution.ProviderConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.configs[provider]
	if !ok {
		return nil, nil
	}
	copied := *cfg
	return &copied, nil
}

func (r *fakeProviderConfigRepo) Upsert(cfg *attribution.ProviderConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *cfg
	r.configs[cfg.Provider] = &copied
	return nil
}

func (r *fakeProviderConfigRepo) UpdateTokens(provider attribution.Provider, accessEnc, refreshEnc string, expiry time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.configs[provider]
	if !ok {
		return nil
	}
	cfg.AccessTokenEnc = accessEnc
	if refreshEnc != "" {
		cfg.RefreshTokenEnc = refreshEnc
	}
	cfg.TokenExpiry = &expiry
	return nil
}

func (r *fakeProviderConfigRepo) Disconnect(provider attribution.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.configs, provider)
	return nil
}

func newProviderFixture(t *testing.T, tokenURL string) (*ProviderService, *fakeProviderConfigRepo, *security.Vault) {
	t.Helper()
	vault, err := security.NewVault("provider-test-secret")
	if err != nil {
		t.Fatalf("NewVault failed: %v", err)
	}
	repo := newFakeProviderConfigRepo()

	google := oauth.NewTokenManager(oauth.Spec{
		Provider:     attribution.ProviderGoogleAds,
		Endpoint:     oauth2.Endpoint{AuthURL: tokenURL + "/auth", TokenURL: tokenURL + "/token"},
		ClientID:     "google-client",
		ClientSecret: "google-secret",
		DefaultTTL:   time.Hour,
	}, repo, vault, logging.NewDiscard())
	hubspot := oauth.NewTokenManager(oauth.Spec{
		Provider:     attribution.ProviderHubSpot,
		Endpoint:     oauth2.Endpoint{AuthURL: tokenURL + "/auth", TokenURL: tokenURL + "/token"},
		ClientID:     "hubspot-client",
		ClientSecret: "hubspot-secret",
		DefaultTTL:   time.Hour,
	}, repo, vault, logging.NewDiscard())

	return NewProviderService(repo, vault, logging.NewDiscard(), google, hubspot), repo, vault
}

func stateFromAuthorizeURL(t *testing.T, rawURL string) string {
	t.Helper()
	parsed, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("authorize url unparseable: %v", err)
	}
	state := parsed.Query().Get("state")
	if state == "" {
		t.Fatal("authorize url carries no state")
	}
	return state
}

func TestAuthorizeURLCarriesSignedState(t *testing.T) {
	svc, _, _ := newProviderFixture(t, "http://127.0.0.1:0")

	rawURL, err := svc.AuthorizeURL(attribution.ProviderGoogleAds)
	if err != nil {
		t.Fatalf("AuthorizeURL failed: %v", err)
	}
	state := stateFromAuthorizeURL(t, rawURL)

	if err := svc.validateState(attribution.ProviderGoogleAds, state); err != nil {
		t.Errorf("freshly minted state rejected: %v", err)
	}
	if err := svc.validateState(attribution.ProviderHubSpot, state); err != ErrBadState {
		t.Errorf("state accepted for the wrong provider: %v", err)
	}
}

func TestAuthorizeURLUnknownProvider(t *testing.T) {
	svc, _, _ := newProviderFixture(t, "http://127.0.0.1:0")

	if _, err := svc.AuthorizeURL(attribution.ProviderMeta); err != ErrUnknownProvider {
		t.Errorf("AuthorizeURL error = %v, want ErrUnknownProvider", err)
	}
}

func TestHandleCallbackPersistsEncryptedCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	svc, repo, vault := newProviderFixture(t, server.URL)

	rawURL, err := svc.AuthorizeURL(attribution.ProviderGoogleAds)
	if err != nil {
		t.Fatalf("AuthorizeURL failed: %v", err)
	}
	state := stateFromAuthorizeURL(t, rawURL)

	if err := svc.HandleCallback(context.Background(), attribution.ProviderGoogleAds, "auth-code", state); err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}

	cfg, _ := repo.Find(attribution.ProviderGoogleAds)
	if cfg == nil || !cfg.Connected() || !cfg.Enabled {
		t.Fatalf("stored config = %+v, want connected", cfg)
	}
	if access, err := vault.Decrypt(cfg.AccessTokenEnc); err != nil || access != "new-access" {
		t.Errorf("stored access token = %q (err %v)", access, err)
	}
	if refresh, err := vault.Decrypt(cfg.RefreshTokenEnc); err != nil || refresh != "new-refresh" {
		t.Errorf("stored refresh token = %q (err %v)", refresh, err)
	}
}

func TestHandleCallbackRejectsForeignState(t *testing.T) {
	svc, repo, _ := newProviderFixture(t, "http://127.0.0.1:0")

	rawURL, err := svc.AuthorizeURL(attribution.ProviderGoogleAds)
	if err != nil {
		t.Fatalf("AuthorizeURL failed: %v", err)
	}
	state := stateFromAuthorizeURL(t, rawURL)

	// A google-minted state presented on the hubspot callback.
	if err := svc.HandleCallback(context.Background(), attribution.ProviderHubSpot, "code", state); err != ErrBadState {
		t.Errorf("HandleCallback error = %v, want ErrBadState", err)
	}
	if cfg, _ := repo.Find(attribution.ProviderHubSpot); cfg != nil {
		t.Error("rejected callback persisted credentials")
	}
}

func TestHandleCallbackRejectsGarbageState(t *testing.T) {
	svc, _, _ := newProviderFixture(t, "http://127.0.0.1:0")

	if err := svc.HandleCallback(context.Background(), attribution.ProviderGoogleAds, "code", "not-a-jwt"); err != ErrBadState {
		t.Errorf("HandleCallback error = %v, want ErrBadState", err)
	}
}

func TestConnectMetaStoresEncryptedToken(t *testing.T) {
	svc, repo, vault := newProviderFixture(t, "http://127.0.0.1:0")

	if err := svc.ConnectMeta("pixel-123", "long-lived-token"); err != nil {
		t.Fatalf("ConnectMeta failed: %v", err)
	}

	cfg, _ := repo.Find(attribution.ProviderMeta)
	if cfg == nil || !cfg.Connected() || !cfg.Enabled {
		t.Fatalf("stored config = %+v, want connected", cfg)
	}
	if cfg.AccountID != "pixel-123" {
		t.Errorf("account id = %q", cfg.AccountID)
	}
	if cfg.AccessTokenEnc == "long-lived-token" {
		t.Error("access token stored in plaintext")
	}
	if token, err := vault.Decrypt(cfg.AccessTokenEnc); err != nil || token != "long-lived-token" {
		t.Errorf("decrypted token = %q (err %v)", token, err)
	}
}

func TestConnectMetaValidation(t *testing.T) {
	svc, _, _ := newProviderFixture(t, "http://127.0.0.1:0")

	if err := svc.ConnectMeta("", "token"); err == nil {
		t.Error("ConnectMeta accepted an empty pixel id")
	}
	if err := svc.ConnectMeta("pixel", ""); err == nil {
		t.Error("ConnectMeta accepted an empty token")
	}
}

func TestDisconnectUnknownProvider(t *testing.T) {
	svc, _, _ := newProviderFixture(t, "http://127.0.0.1:0")

	if err := svc.Disconnect(attribution.Provider("tiktok")); err != ErrUnknownProvider {
		t.Errorf("Disconnect error = %v, want ErrUnknownProvider", err)
	}
}

func TestStatusListsEveryProvider(t *testing.T) {
	svc, _, _ := newProviderFixture(t, "http://127.0.0.1:0")

	if err := svc.ConnectMeta("pixel-123", "token"); err != nil {
		t.Fatalf("ConnectMeta failed: %v", err)
	}

	statuses, err := svc.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(statuses) != 4 {
		t.Fatalf("statuses = %d, want 4", len(statuses))
	}

	byProvider := make(map[attribution.Provider]ProviderStatus, len(statuses))
	for _, s := range statuses {
		byProvider[s.Provider] = s
	}
	if !byProvider[attribution.ProviderMeta].Connected {
		t.Error("meta not reported connected")
	}
	if byProvider[attribution.ProviderGoogleAds].Connected {
		t.Error("google reported connected without credentials")
	}
}
