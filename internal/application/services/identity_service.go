package services

import (
	"github.com/LeadSpringHQ/leadspring-go/internal/domain/user"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/performance"
)

// ClickIDs is one per-network click identifier set.
type ClickIDs struct {
	GCLID   string
	MSCLKID string
	FBCLID  string
	FBP     string
}

// merge returns ids with empty fields filled from fallback. The
// receiver's values always win: an id carried on the current event
// overrides the visitor's stored first-touch value.
func (c ClickIDs) merge(fallback ClickIDs) ClickIDs {
	if c.GCLID == "" {
		c.GCLID = fallback.GCLID
	}
	if c.MSCLKID == "" {
		c.MSCLKID = fallback.MSCLKID
	}
	if c.FBCLID == "" {
		c.FBCLID = fallback.FBCLID
	}
	if c.FBP == "" {
		c.FBP = fallback.FBP
	}
	return c
}

// Resolution is the outcome of resolving a correlation key. A nil
// Visitor and nil Lead means unknown identity, which is a valid
// terminal outcome, not an error.
type Resolution struct {
	// CorrelationKey is the raw inbound key, kept even when it matched
	// nothing so uncorrelated ledger rows stay reconcilable.
	CorrelationKey string
	Visitor        *user.Visitor
	Lead           *user.Lead
	// ClickIDs are the effective identifiers after event-over-visitor
	// precedence is applied.
	ClickIDs ClickIDs
	// Blocked is set when the visitor's IP is on the blocklist. The
	// caller still writes a ledger row but suppresses every channel send.
	Blocked bool
}

// IdentityService maps inbound correlation keys to visitors and leads.
type IdentityService struct {
	visitors  user.VisitorRepository
	leads     user.LeadRepository
	blocklist user.BlocklistRepository
	logger    *logging.ChanneledLogger
	perf      *performance.Tracker
}

// NewIdentityService creates a new identity resolution service.
func NewIdentityService(visitors user.VisitorRepository, leads user.LeadRepository, blocklist user.BlocklistRepository, logger *logging.ChanneledLogger, perf *performance.Tracker) *IdentityService {
	return &IdentityService{
		visitors:  visitors,
		leads:     leads,
		blocklist: blocklist,
		logger:    logger,
		perf:      perf,
	}
}

// Resolve looks up the visitor for a correlation key and, when the
// visitor has converted, its lead. Event-supplied click ids take
// precedence over the visitor's stored ones.
func (s *IdentityService) Resolve(correlationKey string, eventIDs ClickIDs) (*Resolution, error) {
	marker := s.perf.StartOperation("identity_resolve")
	defer marker.Complete()

	resolution := &Resolution{CorrelationKey: correlationKey, ClickIDs: eventIDs}

	visitor, err := s.visitors.FindByID(correlationKey)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}
	if visitor == nil {
		s.logger.Identity().Debug("Correlation key matched no visitor", "correlationKey", correlationKey)
		marker.SetSuccess(true)
		return resolution, nil
	}

	resolution.Visitor = visitor
	resolution.ClickIDs = eventIDs.merge(ClickIDs{
		GCLID:   visitor.GCLID,
		MSCLKID: visitor.MSCLKID,
		FBCLID:  visitor.FBCLID,
		FBP:     visitor.FBP,
	})

	if visitor.LeadID != nil && *visitor.LeadID != "" {
		lead, err := s.leads.FindByID(*visitor.LeadID)
		if err != nil {
			marker.SetError(err)
			return nil, err
		}
		resolution.Lead = lead
	}

	if blocked, err := s.checkBlocklist(visitor, resolution.Lead); err != nil {
		s.logger.Identity().Error("Blocklist check failed", "error", err.Error(), "correlationKey", correlationKey)
	} else {
		resolution.Blocked = blocked
	}

	marker.SetSuccess(true)
	return resolution, nil
}

// checkBlocklist marks the lead blocked when the visitor's stored IP is
// on the blocklist. The flag is persisted so later events short-circuit
// without another lookup.
func (s *IdentityService) checkBlocklist(visitor *user.Visitor, lead *user.Lead) (bool, error) {
	if lead != nil && lead.Blocked {
		return true, nil
	}
	if visitor.IP == "" {
		return false, nil
	}

	blocked, err := s.blocklist.IsBlocked(visitor.IP)
	if err != nil {
		return false, err
	}
	if !blocked {
		return false, nil
	}

	if lead != nil && !lead.Blocked {
		if err := s.leads.SetBlocked(lead.ID, true); err != nil {
			s.logger.Identity().Error("Failed to persist blocked flag", "error", err.Error(), "leadId", lead.ID)
		} else {
			lead.Blocked = true
			s.logger.Identity().Info("Lead marked blocked by IP blocklist", "leadId", lead.ID, "ip", visitor.IP)
		}
	}
	return true, nil
}
