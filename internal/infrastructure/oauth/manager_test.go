package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/LeadSpringHQ/leadspring-go/internal/domain/attribution"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/security"
)

type fakeProviderRepo struct {
	cfg          *attribution.ProviderConfig
	updateCalls  int
	lastAccess   string
	lastRefresh  string
	lastExpiry   time.Time
	upsertCalled bool
}

func (r *fakeProviderRepo) Find(provider attribution.Provider) (*attribution.ProviderConfig, error) {
	if r.cfg == nil || r.cfg.Provider != provider {
		return nil, nil
	}
	copied := *r.cfg
	return &copied, nil
}

func (r *fakeProviderRepo) Upsert(cfg *attribution.ProviderConfig) error {
	r.upsertCalled = true
	copied := *cfg
	r.cfg = &copied
	return nil
}

func (r *fakeProviderRepo) UpdateTokens(provider attribution.Provider, accessEnc, refreshEnc string, expiry time.Time) error {
	r.updateCalls++
	r.lastAccess = accessEnc
	r.lastRefresh = refreshEnc
	r.lastExpiry = expiry
	r.cfg.AccessTokenEnc = accessEnc
	if refreshEnc != "" {
		r.cfg.RefreshTokenEnc = refreshEnc
	}
	r.cfg.TokenExpiry = &expiry
	return nil
}

func (r *fakeProviderRepo) Disconnect(provider attribution.Provider) error {
	r.cfg = nil
	return nil
}

func newTestManager(t *testing.T, tokenURL string, repo *fakeProviderRepo) (*TokenManager, *security.Vault) {
	t.Helper()
	vault, err := security.NewVault("manager-test-secret")
	if err != nil {
		t.Fatalf("NewVault failed: %v", err)
	}
	spec := Spec{
		Provider:     attribution.ProviderGoogleAds,
		Endpoint:     oauth2.Endpoint{AuthURL: tokenURL + "/auth", TokenURL: tokenURL + "/token"},
		Scopes:       []string{"test.scope"},
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		DefaultTTL:   time.Hour,
	}
	return NewTokenManager(spec, repo, vault, logging.NewDiscard()), vault
}

func storedConfig(t *testing.T, vault *security.Vault, access, refresh string, expiry time.Time) *attribution.ProviderConfig {
	t.Helper()
	accessEnc, err := vault.Encrypt(access)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	refreshEnc, err := vault.Encrypt(refresh)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	return &attribution.ProviderConfig{
		Provider:        attribution.ProviderGoogleAds,
		AccessTokenEnc:  accessEnc,
		RefreshTokenEnc: refreshEnc,
		TokenExpiry:     &expiry,
		Enabled:         true,
	}
}

func TestAccessTokenFreshNoRefresh(t *testing.T) {
	var refreshCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshCalls++
		t.Errorf("unexpected call to token endpoint: %s", r.URL.Path)
	}))
	defer server.Close()

	repo := &fakeProviderRepo{}
	manager, vault := newTestManager(t, server.URL, repo)
	repo.cfg = storedConfig(t, vault, "fresh-access", "refresh", time.Now().Add(time.Hour))

	token, err := manager.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken failed: %v", err)
	}
	if token != "fresh-access" {
		t.Errorf("AccessToken = %q, want %q", token, "fresh-access")
	}
	if refreshCalls != 0 {
		t.Errorf("refresh calls = %d, want 0", refreshCalls)
	}
	if repo.updateCalls != 0 {
		t.Errorf("UpdateTokens calls = %d, want 0", repo.updateCalls)
	}
}

func TestAccessTokenExpiringTriggersOneRefresh(t *testing.T) {
	var refreshCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshCalls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"rotated-refresh","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	repo := &fakeProviderRepo{}
	manager, vault := newTestManager(t, server.URL, repo)
	// Expiring within the 5 minute skew window.
	repo.cfg = storedConfig(t, vault, "stale-access", "old-refresh", time.Now().Add(2*time.Minute))

	token, err := manager.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken failed: %v", err)
	}
	if token != "new-access" {
		t.Errorf("AccessToken = %q, want %q", token, "new-access")
	}
	if refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want 1", refreshCalls)
	}
	if repo.updateCalls != 1 {
		t.Fatalf("UpdateTokens calls = %d, want 1", repo.updateCalls)
	}

	persistedAccess, err := vault.Decrypt(repo.lastAccess)
	if err != nil || persistedAccess != "new-access" {
		t.Errorf("persisted access token = %q (err %v), want %q", persistedAccess, err, "new-access")
	}
	persistedRefresh, err := vault.Decrypt(repo.lastRefresh)
	if err != nil || persistedRefresh != "rotated-refresh" {
		t.Errorf("persisted refresh token = %q (err %v), want %q", persistedRefresh, err, "rotated-refresh")
	}
	if time.Until(repo.lastExpiry) < 55*time.Minute {
		t.Errorf("persisted expiry %v is not about an hour out", repo.lastExpiry)
	}
}

func TestAccessTokenRefreshWithoutRotationKeepsStoredRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	repo := &fakeProviderRepo{}
	manager, vault := newTestManager(t, server.URL, repo)
	repo.cfg = storedConfig(t, vault, "stale-access", "keep-this-refresh", time.Now().Add(-time.Minute))
	originalRefreshEnc := repo.cfg.RefreshTokenEnc

	if _, err := manager.AccessToken(context.Background()); err != nil {
		t.Fatalf("AccessToken failed: %v", err)
	}
	if repo.lastRefresh != "" {
		t.Errorf("UpdateTokens received refresh ciphertext %q, want empty when provider did not rotate", repo.lastRefresh)
	}
	if repo.cfg.RefreshTokenEnc != originalRefreshEnc {
		t.Error("stored refresh token changed without rotation")
	}
}

func TestAccessTokenFailedRefreshLeavesCredentialsUntouched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	repo := &fakeProviderRepo{}
	manager, vault := newTestManager(t, server.URL, repo)
	repo.cfg = storedConfig(t, vault, "stale-access", "dead-refresh", time.Now().Add(-time.Minute))
	before := *repo.cfg

	token, err := manager.AccessToken(context.Background())
	if err == nil {
		t.Fatal("AccessToken succeeded, want error on failed refresh")
	}
	if token != "" {
		t.Errorf("AccessToken = %q, want empty on failure", token)
	}
	if repo.updateCalls != 0 {
		t.Errorf("UpdateTokens calls = %d, want 0", repo.updateCalls)
	}
	if repo.cfg.AccessTokenEnc != before.AccessTokenEnc || repo.cfg.RefreshTokenEnc != before.RefreshTokenEnc {
		t.Error("stored credentials changed after failed refresh")
	}
}

func TestAccessTokenNotConnected(t *testing.T) {
	repo := &fakeProviderRepo{}
	manager, _ := newTestManager(t, "http://127.0.0.1:0", repo)

	if _, err := manager.AccessToken(context.Background()); err != ErrNotConnected {
		t.Errorf("AccessToken error = %v, want ErrNotConnected", err)
	}
}

func TestAccessTokenMissingRefreshToken(t *testing.T) {
	repo := &fakeProviderRepo{}
	manager, vault := newTestManager(t, "http://127.0.0.1:0", repo)

	cfg := storedConfig(t, vault, "stale-access", "refresh", time.Now().Add(-time.Minute))
	cfg.RefreshTokenEnc = "corrupted-not-base64!!!"
	repo.cfg = cfg

	if _, err := manager.AccessToken(context.Background()); err != ErrNoRefreshToken {
		t.Errorf("AccessToken error = %v, want ErrNoRefreshToken", err)
	}
}
