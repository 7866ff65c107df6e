package services

import (
	"time"

	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/security"
	"github.com/LeadSpringHQ/leadspring-go/pkg/config"
)

// AuthService handles admin authentication and JWT issuance.
type AuthService struct {
	logger *logging.ChanneledLogger
}

// NewAuthService creates a new authentication service.
func NewAuthService(logger *logging.ChanneledLogger) *AuthService {
	return &AuthService{logger: logger}
}

// AuthResult holds authentication result data.
type AuthResult struct {
	Token   string `json:"token"`
	Role    string `json:"role"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// AuthenticateAdmin validates the admin password and generates a JWT.
func (a *AuthService) AuthenticateAdmin(password string) *AuthResult {
	if config.AdminPasswordHash == "" || password == "" {
		return &AuthResult{Success: false, Error: "Invalid credentials"}
	}
	if !security.CheckPassword(config.AdminPasswordHash, password) {
		a.logger.Auth().Info("Admin authentication rejected")
		return &AuthResult{Success: false, Error: "Invalid credentials"}
	}

	token, err := security.GenerateAdminToken(config.JWTSecret, 24*time.Hour)
	if err != nil {
		a.logger.Auth().Error("Failed to generate admin token", "error", err.Error())
		return &AuthResult{Success: false, Error: "Token generation failed"}
	}

	a.logger.Auth().Info("Admin authenticated")
	return &AuthResult{Success: true, Token: token, Role: "admin"}
}

// ValidateToken checks a JWT and returns its role, empty when invalid.
func (a *AuthService) ValidateToken(tokenString string) string {
	claims, err := security.ValidateJWT(tokenString, config.JWTSecret)
	if err != nil {
		return ""
	}
	return security.RoleFromClaims(claims)
}
