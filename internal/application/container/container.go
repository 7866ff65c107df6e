// Package container provides dependency injection for all singleton services
package container

import (
	"fmt"

	"github.com/LeadSpringHQ/leadspring-go/internal/application/dispatch"
	"github.com/LeadSpringHQ/leadspring-go/internal/application/services"
	"github.com/LeadSpringHQ/leadspring-go/internal/domain/attribution"
	"github.com/LeadSpringHQ/leadspring-go/internal/domain/user"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/channels"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/email"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/oauth"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/performance"
	persistenceattribution "github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/persistence/attribution"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/persistence/database"
	persistenceuser "github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/persistence/user"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/security"
	"github.com/LeadSpringHQ/leadspring-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies.
type Container struct {
	// Infrastructure
	Logger      *logging.ChanneledLogger
	PerfTracker *performance.Tracker
	DB          *database.DB
	Vault       *security.Vault
	Dispatcher  *dispatch.Dispatcher

	// Repositories
	VisitorRepo   user.VisitorRepository
	LeadRepo      user.LeadRepository
	BlocklistRepo user.BlocklistRepository
	EventRepo     attribution.EventRepository
	ConfigRepo    attribution.PostbackConfigRepository
	ProviderRepo  attribution.ProviderConfigRepository

	// Application services
	AuthService           *services.AuthService
	VisitService          *services.VisitService
	IdentityService       *services.IdentityService
	DispatchService       *services.DispatchService
	PostbackService       *services.PostbackService
	LeadService           *services.LeadService
	ProviderService       *services.ProviderService
	PostbackConfigService *services.PostbackConfigService
	LedgerService         *services.LedgerService
	BlocklistService      *services.BlocklistService
}

// NewContainer creates and wires all singleton services.
func NewContainer(db *database.DB, logger *logging.ChanneledLogger) (*Container, error) {
	vault, err := security.NewVault(config.MasterSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential vault: %w", err)
	}

	perfTracker := performance.NewTracker()

	visitorRepo := persistenceuser.NewSQLVisitorRepository(db, logger)
	leadRepo := persistenceuser.NewSQLLeadRepository(db, logger)
	blocklistRepo := persistenceuser.NewSQLBlocklistRepository(db, logger)
	eventRepo := persistenceattribution.NewSQLEventRepository(db, logger)
	configRepo := persistenceattribution.NewSQLPostbackConfigRepository(db, logger)
	providerRepo := persistenceattribution.NewSQLProviderConfigRepository(db, logger)

	googleManager := oauth.NewGoogleAdsManager(providerRepo, vault, logger)
	microsoftManager := oauth.NewMicrosoftAdsManager(providerRepo, vault, logger)
	hubspotManager := oauth.NewHubSpotManager(providerRepo, vault, logger)

	dispatcher := dispatch.NewDispatcher(eventRepo, logger,
		channels.NewGoogleAdsAdapter(googleManager, logger),
		channels.NewMicrosoftAdsAdapter(microsoftManager, logger),
		channels.NewMetaAdapter(providerRepo, vault, logger),
		channels.NewHubSpotAdapter(hubspotManager, leadRepo, logger),
	)

	// Email is optional; a missing API key disables notifications.
	var notifier email.Service
	if config.ResendAPIKey != "" && config.LeadNotifyEmail != "" {
		notifier, err = email.NewService()
		if err != nil {
			logger.Email().Error("Email service initialization failed", "error", err.Error())
			notifier = nil
		}
	}

	identityService := services.NewIdentityService(visitorRepo, leadRepo, blocklistRepo, logger, perfTracker)
	dispatchService := services.NewDispatchService(dispatcher, eventRepo, configRepo, logger)

	return &Container{
		Logger:      logger,
		PerfTracker: perfTracker,
		DB:          db,
		Vault:       vault,
		Dispatcher:  dispatcher,

		VisitorRepo:   visitorRepo,
		LeadRepo:      leadRepo,
		BlocklistRepo: blocklistRepo,
		EventRepo:     eventRepo,
		ConfigRepo:    configRepo,
		ProviderRepo:  providerRepo,

		AuthService:           services.NewAuthService(logger),
		VisitService:          services.NewVisitService(visitorRepo, logger, perfTracker),
		IdentityService:       identityService,
		DispatchService:       dispatchService,
		PostbackService:       services.NewPostbackService(identityService, dispatchService, leadRepo, eventRepo, logger, perfTracker),
		LeadService:           services.NewLeadService(visitorRepo, leadRepo, blocklistRepo, dispatchService, notifier, logger, perfTracker),
		ProviderService:       services.NewProviderService(providerRepo, vault, logger, googleManager, microsoftManager, hubspotManager),
		PostbackConfigService: services.NewPostbackConfigService(configRepo, logger),
		LedgerService:         services.NewLedgerService(eventRepo, configRepo, leadRepo, visitorRepo, dispatcher, logger, perfTracker),
		BlocklistService:      services.NewBlocklistService(blocklistRepo, logger),
	}, nil
}
