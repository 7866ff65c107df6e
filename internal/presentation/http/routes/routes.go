// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/LeadSpringHQ/leadspring-go/internal/application/container"
	"github.com/LeadSpringHQ/leadspring-go/internal/presentation/http/handlers"
	"github.com/LeadSpringHQ/leadspring-go/internal/presentation/http/middleware"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORSMiddleware())

	// Initialize handlers
	authHandlers := handlers.NewAuthHandlers(container.AuthService, container.Logger, container.PerfTracker)
	visitHandlers := handlers.NewVisitHandlers(container.VisitService, container.Logger, container.PerfTracker)
	leadHandlers := handlers.NewLeadHandlers(container.LeadService, container.Logger, container.PerfTracker)
	postbackHandlers := handlers.NewPostbackHandlers(container.PostbackService, container.Logger, container.PerfTracker)
	providerHandlers := handlers.NewProviderHandlers(container.ProviderService, container.Logger, container.PerfTracker)
	configHandlers := handlers.NewPostbackConfigHandlers(container.PostbackConfigService, container.Logger, container.PerfTracker)
	ledgerHandlers := handlers.NewLedgerHandlers(container.LedgerService, container.Logger, container.PerfTracker)
	blocklistHandlers := handlers.NewBlocklistHandlers(container.BlocklistService, container.Logger)
	healthHandlers := handlers.NewHealthHandlers(container.DB)

	api := r.Group("/api/v1")
	{
		// Public endpoints. The postback is server-to-server and carries
		// no platform auth; the OAuth callback is the provider redirect.
		api.GET("/health", healthHandlers.GetHealth)
		api.GET("/postback", postbackHandlers.HandlePostback)
		api.POST("/postback", postbackHandlers.HandlePostback)
		api.POST("/visit", visitHandlers.PostVisit)
		api.POST("/leads", leadHandlers.PostLead)
		api.GET("/providers/:provider/callback", providerHandlers.GetCallback)

		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandlers.PostLogin)
			auth.POST("/logout", authHandlers.PostLogout)
			auth.GET("/status", authHandlers.GetAuthStatus)
		}

		// Admin endpoints
		admin := api.Group("")
		admin.Use(authHandlers.AdminMiddleware())
		{
			admin.GET("/providers", providerHandlers.GetProviders)
			admin.GET("/providers/:provider/connect", providerHandlers.GetConnect)
			admin.POST("/providers/meta/connect", providerHandlers.PostMetaConnect)
			admin.DELETE("/providers/:provider", providerHandlers.DeleteProvider)

			admin.GET("/postback-configs", configHandlers.GetConfigs)
			admin.GET("/postback-configs/:id", configHandlers.GetConfig)
			admin.POST("/postback-configs", configHandlers.PostConfig)
			admin.PUT("/postback-configs/:id", configHandlers.PutConfig)
			admin.DELETE("/postback-configs/:id", configHandlers.DeleteConfig)

			admin.GET("/events", ledgerHandlers.GetEvents)
			admin.POST("/events/:id/retry", ledgerHandlers.PostRetry)

			admin.GET("/blocklist", blocklistHandlers.GetBlocklist)
			admin.POST("/blocklist", blocklistHandlers.PostBlocklist)
			admin.DELETE("/blocklist/:ip", blocklistHandlers.DeleteBlocklist)
		}
	}

	return r
}
