package services

import (
	"testing"

	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/security"
	"github.com/LeadSpringHQ/leadspring-go/pkg/config"
)

func withAdminCredentials(t *testing.T, password string) {
	t.Helper()
	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	origHash, origSecret := config.AdminPasswordHash, config.JWTSecret
	config.AdminPasswordHash = hash
	config.JWTSecret = "auth-test-secret"
	t.Cleanup(func() {
		config.AdminPasswordHash = origHash
		config.JWTSecret = origSecret
	})
}

func TestAuthenticateAdmin(t *testing.T) {
	withAdminCredentials(t, "correct horse")
	svc := NewAuthService(logging.NewDiscard())

	result := svc.AuthenticateAdmin("correct horse")
	if !result.Success || result.Token == "" || result.Role != "admin" {
		t.Fatalf("result = %+v, want admin token", result)
	}

	if role := svc.ValidateToken(result.Token); role != "admin" {
		t.Errorf("ValidateToken = %q, want admin", role)
	}
}

func TestAuthenticateAdminWrongPassword(t *testing.T) {
	withAdminCredentials(t, "correct horse")
	svc := NewAuthService(logging.NewDiscard())

	for _, password := range []string{"wrong", ""} {
		result := svc.AuthenticateAdmin(password)
		if result.Success || result.Token != "" {
			t.Errorf("AuthenticateAdmin(%q) = %+v, want rejection", password, result)
		}
	}
}

func TestAuthenticateAdminWithoutConfiguredHash(t *testing.T) {
	orig := config.AdminPasswordHash
	config.AdminPasswordHash = ""
	defer func() { config.AdminPasswordHash = orig }()

	svc := NewAuthService(logging.NewDiscard())
	if result := svc.AuthenticateAdmin("anything"); result.Success {
		t.Error("authentication succeeded with no password configured")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	withAdminCredentials(t, "correct horse")
	svc := NewAuthService(logging.NewDiscard())

	for _, token := range []string{"", "garbage", "a.b.c"} {
		if role := svc.ValidateToken(token); role != "" {
			t.Errorf("ValidateToken(%q) = %q, want empty", token, role)
		}
	}
}
