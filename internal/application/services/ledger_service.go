package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/LeadSpringHQ/leadspring-go/internal/application/dispatch"
	"github.com/LeadSpringHQ/leadspring-go/internal/domain/attribution"
	"github.com/LeadSpringHQ/leadspring-go/internal/domain/user"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/channels"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/performance"
	"github.com/LeadSpringHQ/leadspring-go/pkg/config"
)

var (
	// ErrEventNotFound means no ledger row matches the given id.
	ErrEventNotFound = errors.New("event not found")
	// ErrNotRetriable means the row is not in the failed state.
	ErrNotRetriable = errors.New("only failed events can be retried")
	// ErrMissingClickID rejects a retry whose channel requires a click
	// identifier the row never captured.
	ErrMissingClickID = errors.New("event lacks the click identifier its channel requires")
)

// LedgerPage is one page of the admin ledger listing.
type LedgerPage struct {
	Events []*attribution.LedgerEntry `json:"events"`
	Total  int                        `json:"total"`
	Limit  int                        `json:"limit"`
	Offset int                        `json:"offset"`
}

// RetryResult reports one admin-triggered resend.
type RetryResult struct {
	EventID string                  `json:"eventId"`
	Status  attribution.EventStatus `json:"status"`
	Error   string                  `json:"error,omitempty"`
}

// LedgerService exposes the admin view of the conversion ledger and the
// single-row retry.
type LedgerService struct {
	events     attribution.EventRepository
	configs    attribution.PostbackConfigRepository
	leads      user.LeadRepository
	visitors   user.VisitorRepository
	dispatcher *dispatch.Dispatcher
	logger     *logging.ChanneledLogger
	perf       *performance.Tracker
}

// NewLedgerService creates a new ledger service.
func NewLedgerService(events attribution.EventRepository, configs attribution.PostbackConfigRepository, leads user.LeadRepository, visitors user.VisitorRepository, dispatcher *dispatch.Dispatcher, logger *logging.ChanneledLogger, perf *performance.Tracker) *LedgerService {
	return &LedgerService{
		events:     events,
		configs:    configs,
		leads:      leads,
		visitors:   visitors,
		dispatcher: dispatcher,
		logger:     logger,
		perf:       perf,
	}
}

// List returns ledger rows newest first with lead contact fields joined.
func (s *LedgerService) List(limit, offset int) (*LedgerPage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	entries, total, err := s.events.List(limit, offset)
	if err != nil {
		return nil, err
	}
	return &LedgerPage{Events: entries, Total: total, Limit: limit, Offset: offset}, nil
}

// Retry re-invokes the failed row's channel adapter synchronously.
// Success transitions the row to sent; a repeat failure overwrites the
// error detail and stays failed.
func (s *LedgerService) Retry(ctx context.Context, eventID string) (*RetryResult, error) {
	marker := s.perf.StartOperation("ledger_retry")
	defer marker.Complete()

	event, err := s.events.FindByID(eventID)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}
	if event == nil {
		marker.SetSuccess(false)
		return nil, ErrEventNotFound
	}
	if event.Status != attribution.StatusFailed {
		marker.SetSuccess(false)
		return nil, ErrNotRetriable
	}

	adapter := s.dispatcher.Adapter(event.Source)
	if adapter == nil {
		marker.SetSuccess(false)
		return nil, fmt.Errorf("no channel adapter for source %q", event.Source)
	}
	if !event.HasClickID(event.Source) {
		marker.SetSuccess(false)
		return nil, ErrMissingClickID
	}

	req, err := s.rebuildSendRequest(event)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, config.ProviderCallTimeout)
	sendErr := adapter.Send(sendCtx, req)
	cancel()

	result := &RetryResult{EventID: event.ID}
	if sendErr != nil {
		result.Status = attribution.StatusFailed
		result.Error = sendErr.Error()
	} else {
		result.Status = attribution.StatusSent
	}

	if err := s.events.UpdateOutcome(event.ID, result.Status, result.Error); err != nil {
		marker.SetError(err)
		return nil, err
	}

	s.logger.Dispatch().Info("Admin retry settled", "eventId", event.ID, "channel", event.Source, "status", string(result.Status))
	marker.SetSuccess(sendErr == nil)
	return result, nil
}

// rebuildSendRequest reconstructs the adapter input from the stored row,
// its routing config, and whatever lead and visitor context survives.
func (s *LedgerService) rebuildSendRequest(event *attribution.ConversionEvent) (*channels.SendRequest, error) {
	cfg, err := s.configs.FindActiveByEventName(event.EventName)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("no active routing config for event %q", event.EventName)
	}

	req := &channels.SendRequest{Event: event, Config: cfg}

	if event.LeadID != nil && *event.LeadID != "" {
		lead, err := s.leads.FindByID(*event.LeadID)
		if err != nil {
			return nil, err
		}
		req.Lead = lead
	}
	if event.VisitorID != "" {
		visitor, err := s.visitors.FindByID(event.VisitorID)
		if err != nil {
			return nil, err
		}
		if visitor != nil {
			req.ClientIP = visitor.IP
			req.ClientUserAgent = visitor.UserAgent
		}
	}
	return req, nil
}
