// Package handlers provides HTTP request handlers for the presentation layer.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LeadSpringHQ/leadspring-go/internal/application/services"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/performance"
)

// AuthHandlers contains all authentication-related HTTP handlers.
type AuthHandlers struct {
	authService *services.AuthService
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewAuthHandlers creates auth handlers with injected dependencies.
func NewAuthHandlers(authService *services.AuthService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// PostLogin handles POST /api/v1/auth/login - admin authentication.
func (h *AuthHandlers) PostLogin(c *gin.Context) {
	start := time.Now()
	marker := h.perfTracker.StartOperation("post_login_request")
	defer marker.Complete()

	var loginReq struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&loginReq); err != nil {
		h.logger.Auth().Error("Login request JSON binding failed", "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	result := h.authService.AuthenticateAdmin(loginReq.Password)
	if !result.Success {
		h.logger.Auth().Warn("Login attempt failed", "error", result.Error, "duration", time.Since(start))
		marker.SetSuccess(false)
		c.JSON(http.StatusUnauthorized, gin.H{"error": result.Error})
		return
	}

	c.SetCookie(
		"admin_auth", // name
		result.Token, // value
		86400,        // maxAge (24 hours in seconds)
		"/",          // path
		"",           // domain (empty for current domain)
		false,        // secure (set to true in production)
		true,         // httpOnly
	)

	h.logger.Auth().Info("Login successful", "role", result.Role, "duration", time.Since(start))
	marker.SetSuccess(true)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"role":    result.Role,
		"token":   result.Token,
	})
}

// PostLogout handles POST /api/v1/auth/logout - clears the auth cookie.
func (h *AuthHandlers) PostLogout(c *gin.Context) {
	c.SetCookie("admin_auth", "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetAuthStatus handles GET /api/v1/auth/status.
func (h *AuthHandlers) GetAuthStatus(c *gin.Context) {
	role := h.roleFromRequest(c)
	c.JSON(http.StatusOK, gin.H{
		"authenticated": role == "admin",
		"role":          role,
	})
}

// AdminMiddleware gates the admin route group on a valid admin token,
// accepted from the Authorization header or the admin_auth cookie.
func (h *AuthHandlers) AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.roleFromRequest(c) != "admin" {
			h.logger.Auth().Warn("Unauthorized admin access attempt", "path", c.Request.URL.Path)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (h *AuthHandlers) roleFromRequest(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return h.authService.ValidateToken(strings.TrimPrefix(authHeader, "Bearer "))
	}
	if cookie, err := c.Cookie("admin_auth"); err == nil && cookie != "" {
		return h.authService.ValidateToken(cookie)
	}
	return ""
}
