package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/LeadSpringHQ/leadspring-go/internal/domain/attribution"
	"github.com/LeadSpringHQ/leadspring-go/internal/domain/user"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/performance"
	"github.com/LeadSpringHQ/leadspring-go/pkg/config"
)

// ErrValidation rejects a postback missing its required fields before
// any side effect.
var ErrValidation = errors.New("correlation key and event name are required")

// PostbackRequest is the inbound server-to-server conversion report.
type PostbackRequest struct {
	CorrelationKey string
	EventName      string

	Value      float64
	DebtAmount float64
	Revenue    float64
	Currency   string

	TransactionID string

	// Click ids carried directly on this report; they override the
	// visitor's stored first-touch values.
	GCLID   string
	MSCLKID string
	FBCLID  string
	FBP     string

	// RawFields is the full payload for pipeline field mapping.
	RawFields map[string]string
}

// PostbackResponse is the synchronous acknowledgment. Channel booleans
// report whether a send was dispatched; outcomes land in the ledger.
type PostbackResponse struct {
	Success   bool            `json:"success"`
	Duplicate bool            `json:"duplicate,omitempty"`
	EventID   string          `json:"eventId,omitempty"`
	LeadID    string          `json:"leadId,omitempty"`
	GCLID     string          `json:"gclid,omitempty"`
	Warning   string          `json:"warning,omitempty"`
	Error     string          `json:"error,omitempty"`
	Blocked   bool            `json:"blocked,omitempty"`
	Channels  map[string]bool `json:"channels,omitempty"`

	// NotFound distinguishes the "no lead or visitor found" outcome; the
	// handler maps it to 404.
	NotFound bool `json:"-"`
}

// PostbackService is the public ingest path: validation, dedup, identity
// resolution, lead merge, and fan-out trigger.
type PostbackService struct {
	identity *IdentityService
	dispatch *DispatchService
	leads    user.LeadRepository
	events   attribution.EventRepository
	logger   *logging.ChanneledLogger
	perf     *performance.Tracker
}

// NewPostbackService creates a new postback ingest service.
func NewPostbackService(identity *IdentityService, dispatchSvc *DispatchService, leads user.LeadRepository, events attribution.EventRepository, logger *logging.ChanneledLogger, perf *performance.Tracker) *PostbackService {
	return &PostbackService{
		identity: identity,
		dispatch: dispatchSvc,
		leads:    leads,
		events:   events,
		logger:   logger,
		perf:     perf,
	}
}

// HandlePostback processes one inbound conversion report end to end.
func (s *PostbackService) HandlePostback(ctx context.Context, req *PostbackRequest) (*PostbackResponse, error) {
	marker := s.perf.StartOperation("postback_ingest")
	defer marker.Complete()

	req.CorrelationKey = strings.TrimSpace(req.CorrelationKey)
	req.EventName = strings.ToLower(strings.TrimSpace(req.EventName))
	if req.CorrelationKey == "" || req.EventName == "" {
		marker.SetSuccess(false)
		return nil, ErrValidation
	}
	if req.Currency == "" {
		req.Currency = config.DefaultCurrency
	}

	resolution, err := s.identity.Resolve(req.CorrelationKey, ClickIDs{
		GCLID:   req.GCLID,
		MSCLKID: req.MSCLKID,
		FBCLID:  req.FBCLID,
		FBP:     req.FBP,
	})
	if err != nil {
		marker.SetError(err)
		return nil, err
	}

	if req.TransactionID != "" {
		prior, err := s.findRecentDuplicate(req)
		if err != nil {
			s.logger.Ingest().Error("Dedup lookup failed", "error", err.Error(), "correlationKey", req.CorrelationKey)
		} else if prior != nil {
			s.logger.Ingest().Info("Duplicate postback ignored", "correlationKey", req.CorrelationKey, "eventName", req.EventName, "priorEventId", prior.ID)
			marker.SetSuccess(true)
			return &PostbackResponse{
				Success:   true,
				Duplicate: true,
				EventID:   prior.ID,
				Warning:   "duplicate ignored",
			}, nil
		}
	}

	in := &FanOutInput{
		Resolution:    resolution,
		EventName:     req.EventName,
		Value:         req.Value,
		DebtAmount:    req.DebtAmount,
		Revenue:       req.Revenue,
		Currency:      req.Currency,
		TransactionID: req.TransactionID,
		InitialStatus: attribution.StatusPending,
	}

	if resolution.Visitor == nil && resolution.Lead == nil {
		event, err := s.dispatch.WriteUncorrelatedRow(in, "no lead or visitor found")
		if err != nil {
			marker.SetError(err)
			return nil, err
		}
		s.logger.Ingest().Info("Uncorrelated postback logged", "correlationKey", req.CorrelationKey, "eventName", req.EventName, "eventId", event.ID)
		marker.SetSuccess(true)
		return &PostbackResponse{
			Success:  false,
			NotFound: true,
			EventID:  event.ID,
			Error:    "no lead or visitor found",
		}, nil
	}

	if resolution.Lead != nil {
		s.mergeLeadFields(req, resolution)
	}

	if resolution.Blocked {
		event, err := s.dispatch.WriteBlockedRow(in)
		if err != nil {
			marker.SetError(err)
			return nil, err
		}
		marker.SetSuccess(true)
		resp := &PostbackResponse{
			Success: true,
			Blocked: true,
			EventID: event.ID,
			GCLID:   resolution.ClickIDs.GCLID,
		}
		if resolution.Lead != nil {
			resp.LeadID = resolution.Lead.ID
		}
		return resp, nil
	}

	if resolution.Lead == nil {
		// Visitor resolved but never converted; record the report and
		// hand the caller enough to reconcile on its side.
		event, err := s.dispatch.WriteUncorrelatedRow(in, "visitor found but no lead associated")
		if err != nil {
			marker.SetError(err)
			return nil, err
		}
		marker.SetSuccess(true)
		return &PostbackResponse{
			Success: true,
			EventID: event.ID,
			GCLID:   resolution.ClickIDs.GCLID,
			Warning: "Visitor found but no lead associated",
		}, nil
	}

	result, err := s.dispatch.FanOut(ctx, in)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}

	s.logger.Ingest().Info("Postback dispatched",
		"correlationKey", req.CorrelationKey,
		"eventName", req.EventName,
		"leadId", resolution.Lead.ID,
		"rows", len(result.EventIDs))
	marker.SetSuccess(true)

	return &PostbackResponse{
		Success:  true,
		EventID:  result.PrimaryEventID,
		LeadID:   resolution.Lead.ID,
		GCLID:    resolution.ClickIDs.GCLID,
		Channels: result.Channels,
	}, nil
}

// findRecentDuplicate scans the ingest and channel source tags for a row
// matching the correlation key and event name inside the dedup window.
// Best effort: a duplicate outside the window, or one without a
// transaction id, is processed again.
func (s *PostbackService) findRecentDuplicate(req *PostbackRequest) (*attribution.ConversionEvent, error) {
	cutoff := time.Now().UTC().Add(-config.DedupWindow)
	sources := append([]string{attribution.SourcePostback}, channelOrder...)
	for _, source := range sources {
		prior, err := s.events.FindRecentDuplicate(req.CorrelationKey, req.EventName, source, cutoff)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			return prior, nil
		}
	}
	return nil, nil
}

// mergeLeadFields folds the report's monetary and pipeline fields into
// the lead. Columns merge individually; empty inbound values never clear
// stored ones.
func (s *PostbackService) mergeLeadFields(req *PostbackRequest, resolution *Resolution) {
	patch := &user.Lead{
		ID:         resolution.Lead.ID,
		GCLID:      req.GCLID,
		MSCLKID:    req.MSCLKID,
		FBCLID:     req.FBCLID,
		FBP:        req.FBP,
		DebtAmount: req.DebtAmount,
		Revenue:    req.Revenue,
	}
	mapped := MapPipelineFields(req.RawFields)
	patch.Status = mapped["status"]
	patch.Disposition = mapped["disposition"]
	patch.Stage = mapped["stage"]
	patch.ContractDate = mapped["contract_date"]
	patch.SignedTotal = mapped["signed_total"]

	if err := s.leads.Update(patch); err != nil {
		s.logger.Ingest().Error("Lead merge failed", "error", err.Error(), "leadId", resolution.Lead.ID)
	}
}
