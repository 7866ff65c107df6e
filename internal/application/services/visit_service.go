package services

import (
	"strings"
	"time"

	"github.com/LeadSpringHQ/leadspring-go/internal/domain/user"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/performance"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/security"
)

// VisitRequest captures one page view.
type VisitRequest struct {
	VisitorID   string // client-supplied correlation key, minted when absent
	GCLID       string
	MSCLKID     string
	FBCLID      string
	FBP         string
	IP          string
	UserAgent   string
	LandingPath string
}

// VisitService records page views as Visitor rows. A returning visitor
// merges new click ids without clearing first-touch values.
type VisitService struct {
	visitors user.VisitorRepository
	logger   *logging.ChanneledLogger
	perf     *performance.Tracker
}

// NewVisitService creates a new visit tracking service.
func NewVisitService(visitors user.VisitorRepository, logger *logging.ChanneledLogger, perf *performance.Tracker) *VisitService {
	return &VisitService{visitors: visitors, logger: logger, perf: perf}
}

// Track creates or updates the Visitor for a page view and returns it.
func (s *VisitService) Track(req *VisitRequest) (*user.Visitor, error) {
	marker := s.perf.StartOperation("visit_track")
	defer marker.Complete()

	id := strings.TrimSpace(req.VisitorID)
	if id == "" {
		id = security.GenerateULID()
	}

	existing, err := s.visitors.FindByID(id)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}

	if existing == nil {
		visitor := &user.Visitor{
			ID:          id,
			GCLID:       req.GCLID,
			MSCLKID:     req.MSCLKID,
			FBCLID:      req.FBCLID,
			FBP:         req.FBP,
			IP:          req.IP,
			UserAgent:   req.UserAgent,
			LandingPath: req.LandingPath,
			CreatedAt:   time.Now().UTC(),
		}
		if err := s.visitors.Store(visitor); err != nil {
			marker.SetError(err)
			return nil, err
		}
		s.logger.Identity().Debug("Visitor created", "visitorId", id, "landingPath", req.LandingPath)
		marker.SetSuccess(true)
		return visitor, nil
	}

	// First-touch click ids win; only fill gaps from the new view.
	changed := false
	if existing.GCLID == "" && req.GCLID != "" {
		existing.GCLID = req.GCLID
		changed = true
	}
	if existing.MSCLKID == "" && req.MSCLKID != "" {
		existing.MSCLKID = req.MSCLKID
		changed = true
	}
	if existing.FBCLID == "" && req.FBCLID != "" {
		existing.FBCLID = req.FBCLID
		changed = true
	}
	if existing.FBP == "" && req.FBP != "" {
		existing.FBP = req.FBP
		changed = true
	}
	if changed {
		if err := s.visitors.Update(existing); err != nil {
			marker.SetError(err)
			return nil, err
		}
	}

	marker.SetSuccess(true)
	return existing, nil
}
