package services

import (
	"errors"
	"net"
	"strings"

	"github.com/LeadSpringHQ/leadspring-go/internal/domain/user"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
)

// ErrInvalidIP rejects a blocklist entry that is not a valid address.
var ErrInvalidIP = errors.New("invalid IP address")

// BlocklistService manages the IP blocklist behind blocked-lead marking.
type BlocklistService struct {
	blocklist user.BlocklistRepository
	logger    *logging.ChanneledLogger
}

// NewBlocklistService creates a new blocklist service.
func NewBlocklistService(blocklist user.BlocklistRepository, logger *logging.ChanneledLogger) *BlocklistService {
	return &BlocklistService{blocklist: blocklist, logger: logger}
}

// List returns every blocked IP.
func (s *BlocklistService) List() ([]user.BlockedIP, error) {
	return s.blocklist.List()
}

// Add blocks an IP. Re-adding updates the reason.
func (s *BlocklistService) Add(ip, reason string) error {
	ip = strings.TrimSpace(ip)
	if net.ParseIP(ip) == nil {
		return ErrInvalidIP
	}
	if err := s.blocklist.Add(ip, reason); err != nil {
		return err
	}
	s.logger.Identity().Info("IP blocked", "ip", ip, "reason", reason)
	return nil
}

// Remove unblocks an IP.
func (s *BlocklistService) Remove(ip string) error {
	ip = strings.TrimSpace(ip)
	if net.ParseIP(ip) == nil {
		return ErrInvalidIP
	}
	if err := s.blocklist.Remove(ip); err != nil {
		return err
	}
	s.logger.Identity().Info("IP unblocked", "ip", ip)
	return nil
}
