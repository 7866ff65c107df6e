package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/LeadSpringHQ/leadspring-go/internal/application/dispatch"
	"github.com/LeadSpringHQ/leadspring-go/internal/domain/attribution"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/channels"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/security"
)

// channelOrder fixes the iteration order of the fan-out so responses and
// logs are stable. Sends themselves still race.
var channelOrder = []string{
	attribution.SourceGoogle,
	attribution.SourceMicrosoft,
	attribution.SourceMeta,
	attribution.SourceCRM,
}

// FanOutInput describes one logical conversion to spread across channels.
type FanOutInput struct {
	Resolution    *Resolution
	EventName     string
	Value         float64
	DebtAmount    float64
	Revenue       float64
	Currency      string
	TransactionID string

	// InitialStatus is pending for postback rows, auto for the lead
	// submission event.
	InitialStatus attribution.EventStatus

	// Wait blocks until every channel outcome resolves, so the caller's
	// per-channel flags reflect real results instead of eager guesses.
	Wait bool
}

// FanOutResult reports what happened per channel plus the ledger rows
// written.
type FanOutResult struct {
	// Channels maps source tag to success. In detached mode "success"
	// means the send was dispatched; in Wait mode it means the send
	// completed.
	Channels map[string]bool
	EventIDs []string
	// PrimaryEventID is the first ledger row written for this ingest.
	PrimaryEventID string
}

// DispatchService turns one resolved event into independent per-channel
// ledger rows and queued sends.
type DispatchService struct {
	dispatcher *dispatch.Dispatcher
	events     attribution.EventRepository
	configs    attribution.PostbackConfigRepository
	logger     *logging.ChanneledLogger
}

// NewDispatchService creates a new fan-out orchestration service.
func NewDispatchService(dispatcher *dispatch.Dispatcher, events attribution.EventRepository, configs attribution.PostbackConfigRepository, logger *logging.ChanneledLogger) *DispatchService {
	return &DispatchService{
		dispatcher: dispatcher,
		events:     events,
		configs:    configs,
		logger:     logger,
	}
}

// FanOut writes one ledger row per eligible channel and queues their
// sends. When no channel is applicable a single logged row records the
// ingest with the skip reasons. One channel's failure never affects
// another's attempt.
func (s *DispatchService) FanOut(ctx context.Context, in *FanOutInput) (*FanOutResult, error) {
	result := &FanOutResult{Channels: make(map[string]bool, len(channelOrder))}
	for _, source := range channelOrder {
		result.Channels[source] = false
	}

	cfg, err := s.configs.FindActiveByEventName(in.EventName)
	if err != nil {
		return nil, err
	}

	var skipReasons []string
	for _, source := range channelOrder {
		adapter := s.dispatcher.Adapter(source)
		if adapter == nil {
			continue
		}

		if cfg == nil {
			skipReasons = append(skipReasons, source+": no routing configured for event")
			continue
		}

		req := s.buildSendRequest(in, cfg)
		req.Event = s.newEvent(in, source)
		if ok, reason := adapter.Eligible(req); !ok {
			skipReasons = append(skipReasons, source+": "+reason)
			continue
		}

		event := req.Event
		if meta, ok := adapter.(*channels.MetaAdapter); ok {
			if body, err := json.Marshal(meta.BuildPayload(req)); err == nil {
				event.Payload = string(body)
			}
		}
		if err := s.events.Store(event); err != nil {
			s.logger.Dispatch().Error("Failed to write ledger row", "error", err.Error(), "channel", source, "eventName", in.EventName)
			continue
		}
		result.EventIDs = append(result.EventIDs, event.ID)
		if result.PrimaryEventID == "" {
			result.PrimaryEventID = event.ID
		}

		if in.Wait {
			outcome := s.dispatcher.EnqueueWait(ctx, source, event.ID, req)
			if !outcome.Accepted {
				if err := s.events.UpdateOutcome(event.ID, attribution.StatusFailed, outcome.Error); err != nil {
					s.logger.Dispatch().Error("Failed to settle undispatched row", "error", err.Error(), "eventId", event.ID)
				}
			}
			result.Channels[source] = outcome.Sent
		} else {
			dispatched := s.dispatcher.Enqueue(source, event.ID, req)
			if !dispatched {
				if err := s.events.UpdateOutcome(event.ID, attribution.StatusFailed, "dispatch queue full"); err != nil {
					s.logger.Dispatch().Error("Failed to settle undispatched row", "error", err.Error(), "eventId", event.ID)
				}
			}
			result.Channels[source] = dispatched
		}
	}

	if len(result.EventIDs) == 0 {
		event := s.newEvent(in, attribution.SourcePostback)
		event.Status = attribution.StatusLogged
		event.ErrorDetail = strings.Join(skipReasons, "; ")
		if err := s.events.Store(event); err != nil {
			return nil, err
		}
		result.EventIDs = append(result.EventIDs, event.ID)
		result.PrimaryEventID = event.ID
		s.logger.Dispatch().Info("No channel applicable, event logged", "eventName", in.EventName, "eventId", event.ID, "detail", event.ErrorDetail)
	}

	return result, nil
}

// WriteBlockedRow records a suppressed event for a blocklisted lead.
// Exactly one row, zero adapter invocations.
func (s *DispatchService) WriteBlockedRow(in *FanOutInput) (*attribution.ConversionEvent, error) {
	event := s.newEvent(in, attribution.SourcePostback)
	event.Status = attribution.StatusBlocked
	event.ErrorDetail = "lead IP is blocklisted, channel sends suppressed"
	if err := s.events.Store(event); err != nil {
		return nil, err
	}
	s.logger.Dispatch().Info("Blocked event logged without fan-out", "eventName", in.EventName, "eventId", event.ID)
	return event, nil
}

// WriteUncorrelatedRow records an ingest whose correlation key matched
// neither a visitor nor a lead.
func (s *DispatchService) WriteUncorrelatedRow(in *FanOutInput, detail string) (*attribution.ConversionEvent, error) {
	event := s.newEvent(in, attribution.SourcePostback)
	event.Status = attribution.StatusLogged
	event.ErrorDetail = detail
	if err := s.events.Store(event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *DispatchService) buildSendRequest(in *FanOutInput, cfg *attribution.PostbackConfig) *channels.SendRequest {
	req := &channels.SendRequest{
		Config: cfg,
		Lead:   in.Resolution.Lead,
	}
	if in.Resolution.Visitor != nil {
		req.ClientIP = in.Resolution.Visitor.IP
		req.ClientUserAgent = in.Resolution.Visitor.UserAgent
	}
	return req
}

// newEvent snapshots the effective click ids into a fresh ledger row.
func (s *DispatchService) newEvent(in *FanOutInput, source string) *attribution.ConversionEvent {
	ids := in.Resolution.ClickIDs
	event := &attribution.ConversionEvent{
		ID:            security.GenerateULID(),
		EventName:     in.EventName,
		GCLID:         ids.GCLID,
		MSCLKID:       ids.MSCLKID,
		FBCLID:        ids.FBCLID,
		FBP:           ids.FBP,
		Value:         in.Value,
		DebtAmount:    in.DebtAmount,
		Revenue:       in.Revenue,
		Currency:      in.Currency,
		TransactionID: in.TransactionID,
		Source:        source,
		Status:        in.InitialStatus,
		CreatedAt:     time.Now().UTC(),
	}
	if in.Resolution.Visitor != nil {
		event.VisitorID = in.Resolution.Visitor.ID
	}
	if in.Resolution.Lead != nil {
		leadID := in.Resolution.Lead.ID
		event.LeadID = &leadID
		if event.VisitorID == "" {
			event.VisitorID = in.Resolution.Lead.VisitorID
		}
	}
	// Uncorrelated rows keep the inbound key so they can be reconciled
	// and deduplicated later.
	if event.VisitorID == "" {
		event.VisitorID = in.Resolution.CorrelationKey
	}
	return event
}
