// Package middleware provides HTTP middleware for the presentation layer.
package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/LeadSpringHQ/leadspring-go/pkg/config"
)

// CORSMiddleware provides the CORS configuration. The postback endpoint
// is server-to-server and unaffected; this covers the admin UI and the
// landing-page tracking calls.
func CORSMiddleware() gin.HandlerFunc {
	cfg := cors.Config{
		AllowOrigins: config.AllowedOrigins,
		AllowMethods: []string{
			"GET", "POST", "PUT", "DELETE", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
			"X-Requested-With", "Cache-Control",
		},
		AllowCredentials: true,
		ExposeHeaders: []string{
			"Content-Type", "Cache-Control", "Connection",
		},
	}
	return cors.New(cfg)
}
