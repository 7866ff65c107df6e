package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/LeadSpringHQ/leadspring-go/internal/domain/attribution"
	"github.com/LeadSpringHQ/leadspring-go/internal/domain/user"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/email"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/performance"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/security"
	"github.com/LeadSpringHQ/leadspring-go/pkg/config"
)

// LeadEventName is the canonical auto-event fired at submission time.
const LeadEventName = "lead"

// ErrLeadValidation rejects a submission missing contact data.
var ErrLeadValidation = errors.New("email or phone is required")

// LeadSubmission is one inbound lead form post.
type LeadSubmission struct {
	VisitorID string
	FirstName string
	LastName  string
	Email     string
	Phone     string

	// Payload click ids take precedence over the visitor's stored ones.
	GCLID   string
	MSCLKID string
	FBCLID  string
	FBP     string

	DebtAmount float64
	Extra      map[string]string

	ClientIP        string
	ClientUserAgent string
	LandingPath     string
}

// LeadResult reports the created lead and its auto-event outcome. The
// channel flags are true only after the async sends resolve.
type LeadResult struct {
	Success   bool            `json:"success"`
	LeadID    string          `json:"leadId,omitempty"`
	VisitorID string          `json:"visitorId,omitempty"`
	EventID   string          `json:"eventId,omitempty"`
	Blocked   bool            `json:"blocked,omitempty"`
	Warning   string          `json:"warning,omitempty"`
	Channels  map[string]bool `json:"channels,omitempty"`
}

// LeadService converts visitors into leads: submission, the canonical
// auto-event fan-out, and the operator notification.
type LeadService struct {
	visitors  user.VisitorRepository
	leads     user.LeadRepository
	blocklist user.BlocklistRepository
	dispatch  *DispatchService
	notifier  email.Service // nil when email is not configured
	logger    *logging.ChanneledLogger
	perf      *performance.Tracker
}

// NewLeadService creates a new lead submission service.
func NewLeadService(visitors user.VisitorRepository, leads user.LeadRepository, blocklist user.BlocklistRepository, dispatchSvc *DispatchService, notifier email.Service, logger *logging.ChanneledLogger, perf *performance.Tracker) *LeadService {
	return &LeadService{
		visitors:  visitors,
		leads:     leads,
		blocklist: blocklist,
		dispatch:  dispatchSvc,
		notifier:  notifier,
		logger:    logger,
		perf:      perf,
	}
}

// Submit creates the lead, converts its visitor, fires the "lead"
// auto-event across the channels, and notifies the operator.
func (s *LeadService) Submit(ctx context.Context, sub *LeadSubmission) (*LeadResult, error) {
	marker := s.perf.StartOperation("lead_submit")
	defer marker.Complete()

	sub.Email = strings.ToLower(strings.TrimSpace(sub.Email))
	sub.Phone = strings.TrimSpace(sub.Phone)
	if sub.Email == "" && sub.Phone == "" {
		marker.SetSuccess(false)
		return nil, ErrLeadValidation
	}

	visitor, err := s.resolveOrCreateVisitor(sub)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}

	if visitor.Converted && visitor.LeadID != nil && *visitor.LeadID != "" {
		return s.mergeRepeatSubmission(visitor, sub, marker)
	}

	lead := s.buildLead(visitor, sub)
	if err := s.leads.Store(lead); err != nil {
		marker.SetError(err)
		return nil, err
	}

	leadID := lead.ID
	visitor.Converted = true
	visitor.LeadID = &leadID
	if err := s.visitors.Update(visitor); err != nil {
		marker.SetError(err)
		return nil, err
	}
	s.logger.Ingest().Info("Lead created", "leadId", lead.ID, "visitorId", visitor.ID, "email", lead.Email)

	blocked := s.checkBlocked(visitor, lead)

	resolution := &Resolution{
		Visitor: visitor,
		Lead:    lead,
		ClickIDs: ClickIDs{
			GCLID:   lead.GCLID,
			MSCLKID: lead.MSCLKID,
			FBCLID:  lead.FBCLID,
			FBP:     lead.FBP,
		},
		Blocked: blocked,
	}
	in := &FanOutInput{
		Resolution:    resolution,
		EventName:     LeadEventName,
		DebtAmount:    sub.DebtAmount,
		Currency:      config.DefaultCurrency,
		InitialStatus: attribution.StatusAuto,
		Wait:          true,
	}

	result := &LeadResult{Success: true, LeadID: lead.ID, VisitorID: visitor.ID, Blocked: blocked}

	if blocked {
		event, err := s.dispatch.WriteBlockedRow(in)
		if err != nil {
			marker.SetError(err)
			return nil, err
		}
		result.EventID = event.ID
		marker.SetSuccess(true)
		return result, nil
	}

	fanOut, err := s.dispatch.FanOut(ctx, in)
	if err != nil {
		// The lead exists; the auto-event failure is a ledger concern,
		// not a reason to fail the submission.
		s.logger.Dispatch().Error("Lead auto-event fan-out failed", "error", err.Error(), "leadId", lead.ID)
	} else {
		result.EventID = fanOut.PrimaryEventID
		result.Channels = fanOut.Channels
	}

	s.notifyOperator(lead, visitor)

	marker.SetSuccess(true)
	return result, nil
}

// resolveOrCreateVisitor finds the submission's visitor, minting one
// when the form arrived without a tracked page view.
func (s *LeadService) resolveOrCreateVisitor(sub *LeadSubmission) (*user.Visitor, error) {
	id := strings.TrimSpace(sub.VisitorID)
	if id != "" {
		visitor, err := s.visitors.FindByID(id)
		if err != nil {
			return nil, err
		}
		if visitor != nil {
			return visitor, nil
		}
	}
	if id == "" {
		id = security.GenerateULID()
	}

	visitor := &user.Visitor{
		ID:          id,
		GCLID:       sub.GCLID,
		MSCLKID:     sub.MSCLKID,
		FBCLID:      sub.FBCLID,
		FBP:         sub.FBP,
		IP:          sub.ClientIP,
		UserAgent:   sub.ClientUserAgent,
		LandingPath: sub.LandingPath,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.visitors.Store(visitor); err != nil {
		return nil, err
	}
	return visitor, nil
}

// buildLead copies visitor click ids onto the lead, with submission
// values taking precedence.
func (s *LeadService) buildLead(visitor *user.Visitor, sub *LeadSubmission) *user.Lead {
	ids := ClickIDs{GCLID: sub.GCLID, MSCLKID: sub.MSCLKID, FBCLID: sub.FBCLID, FBP: sub.FBP}.merge(ClickIDs{
		GCLID:   visitor.GCLID,
		MSCLKID: visitor.MSCLKID,
		FBCLID:  visitor.FBCLID,
		FBP:     visitor.FBP,
	})

	now := time.Now().UTC()
	return &user.Lead{
		ID:         security.GenerateULID(),
		VisitorID:  visitor.ID,
		FirstName:  strings.TrimSpace(sub.FirstName),
		LastName:   strings.TrimSpace(sub.LastName),
		Email:      sub.Email,
		Phone:      sub.Phone,
		GCLID:      ids.GCLID,
		MSCLKID:    ids.MSCLKID,
		FBCLID:     ids.FBCLID,
		FBP:        ids.FBP,
		DebtAmount: sub.DebtAmount,
		Extra:      sub.Extra,
		CreatedAt:  now,
		Changed:    now,
	}
}

// mergeRepeatSubmission folds a duplicate form post into the existing
// lead without firing another auto-event.
func (s *LeadService) mergeRepeatSubmission(visitor *user.Visitor, sub *LeadSubmission, marker *performance.Marker) (*LeadResult, error) {
	leadID := *visitor.LeadID
	patch := &user.Lead{
		ID:         leadID,
		FirstName:  strings.TrimSpace(sub.FirstName),
		LastName:   strings.TrimSpace(sub.LastName),
		Email:      sub.Email,
		Phone:      sub.Phone,
		GCLID:      sub.GCLID,
		MSCLKID:    sub.MSCLKID,
		FBCLID:     sub.FBCLID,
		FBP:        sub.FBP,
		DebtAmount: sub.DebtAmount,
		Extra:      sub.Extra,
	}
	if err := s.leads.Update(patch); err != nil {
		marker.SetError(err)
		return nil, err
	}
	s.logger.Ingest().Info("Repeat lead submission merged", "leadId", leadID, "visitorId", visitor.ID)
	marker.SetSuccess(true)
	return &LeadResult{
		Success:   true,
		LeadID:    leadID,
		VisitorID: visitor.ID,
		Warning:   "visitor already converted, lead updated",
	}, nil
}

// checkBlocked flags the fresh lead when its visitor IP is blocklisted.
func (s *LeadService) checkBlocked(visitor *user.Visitor, lead *user.Lead) bool {
	if visitor.IP == "" {
		return false
	}
	blocked, err := s.blocklist.IsBlocked(visitor.IP)
	if err != nil {
		s.logger.Identity().Error("Blocklist check failed", "error", err.Error(), "ip", visitor.IP)
		return false
	}
	if blocked {
		if err := s.leads.SetBlocked(lead.ID, true); err != nil {
			s.logger.Identity().Error("Failed to persist blocked flag", "error", err.Error(), "leadId", lead.ID)
		} else {
			lead.Blocked = true
		}
		s.logger.Identity().Info("Lead blocked at submission", "leadId", lead.ID, "ip", visitor.IP)
	}
	return blocked
}

// notifyOperator sends the new-lead email without blocking the
// submission response.
func (s *LeadService) notifyOperator(lead *user.Lead, visitor *user.Visitor) {
	if s.notifier == nil || !config.EmailNotifyEnable {
		return
	}
	notification := &email.LeadNotification{
		LeadID:      lead.ID,
		FirstName:   lead.FirstName,
		LastName:    lead.LastName,
		Email:       lead.Email,
		Phone:       lead.Phone,
		LandingPath: visitor.LandingPath,
		GCLID:       lead.GCLID,
	}
	go func() {
		if err := s.notifier.SendLeadNotification(notification); err != nil {
			s.logger.Email().Error("Lead notification failed", "error", err.Error(), "leadId", notification.LeadID)
		}
	}()
}
