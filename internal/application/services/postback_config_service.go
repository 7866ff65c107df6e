package services

import (
	"errors"
	"strings"
	"time"

	"github.com/LeadSpringHQ/leadspring-go/internal/domain/attribution"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/security"
)

var (
	// ErrConfigNotFound means no routing config matches the given id.
	ErrConfigNotFound = errors.New("postback config not found")
	// ErrEventNameTaken enforces uniqueness among active configs.
	ErrEventNameTaken = errors.New("an active config already exists for this event name")
	// ErrEventNameRequired rejects a config without an event name.
	ErrEventNameRequired = errors.New("event name is required")
)

// PostbackConfigService manages the event-name to channel-target routing
// table. Event names are case-normalized and unique among active configs.
type PostbackConfigService struct {
	configs attribution.PostbackConfigRepository
	logger  *logging.ChanneledLogger
}

// NewPostbackConfigService creates a new routing config service.
func NewPostbackConfigService(configs attribution.PostbackConfigRepository, logger *logging.ChanneledLogger) *PostbackConfigService {
	return &PostbackConfigService{configs: configs, logger: logger}
}

// List returns every routing config.
func (s *PostbackConfigService) List() ([]*attribution.PostbackConfig, error) {
	return s.configs.FindAll()
}

// Get returns one routing config by id.
func (s *PostbackConfigService) Get(id string) (*attribution.PostbackConfig, error) {
	cfg, err := s.configs.FindByID(id)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrConfigNotFound
	}
	return cfg, nil
}

// Create stores a new routing config after normalizing its event name.
func (s *PostbackConfigService) Create(cfg *attribution.PostbackConfig) (*attribution.PostbackConfig, error) {
	cfg.EventName = normalizeEventName(cfg.EventName)
	if cfg.EventName == "" {
		return nil, ErrEventNameRequired
	}
	if cfg.Active {
		if err := s.checkEventNameFree(cfg.EventName, ""); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	cfg.ID = security.GenerateULID()
	cfg.CreatedAt = now
	cfg.Changed = now
	if err := s.configs.Store(cfg); err != nil {
		return nil, err
	}
	s.logger.System().Info("Postback config created", "id", cfg.ID, "eventName", cfg.EventName)
	return cfg, nil
}

// Update replaces a routing config's fields, re-checking uniqueness when
// it stays active.
func (s *PostbackConfigService) Update(id string, cfg *attribution.PostbackConfig) (*attribution.PostbackConfig, error) {
	existing, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	cfg.EventName = normalizeEventName(cfg.EventName)
	if cfg.EventName == "" {
		return nil, ErrEventNameRequired
	}
	if cfg.Active {
		if err := s.checkEventNameFree(cfg.EventName, id); err != nil {
			return nil, err
		}
	}

	cfg.ID = existing.ID
	cfg.CreatedAt = existing.CreatedAt
	cfg.Changed = time.Now().UTC()
	if err := s.configs.Update(cfg); err != nil {
		return nil, err
	}
	s.logger.System().Info("Postback config updated", "id", cfg.ID, "eventName", cfg.EventName)
	return cfg, nil
}

// Delete removes a routing config.
func (s *PostbackConfigService) Delete(id string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	return s.configs.Delete(id)
}

// checkEventNameFree rejects a second active config for the same name.
// An inactive config does not reserve its name.
func (s *PostbackConfigService) checkEventNameFree(eventName, excludeID string) error {
	active, err := s.configs.FindActiveByEventName(eventName)
	if err != nil {
		return err
	}
	if active != nil && active.ID != excludeID {
		return ErrEventNameTaken
	}
	return nil
}

func normalizeEventName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
