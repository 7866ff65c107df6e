package user

import (
	"database/sql"
	"time"

	"github.com/LeadSpringHQ/leadspring-go/internal/domain/user"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/persistence/database"
)

// SQLBlocklistRepository is the SQL-based implementation of the BlocklistRepository.
type SQLBlocklistRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLBlocklistRepository creates a new instance of the repository.
func NewSQLBlocklistRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLBlocklistRepository {
	return &SQLBlocklistRepository{
		db:     db,
		logger: logger,
	}
}

// IsBlocked reports whether an IP is on the blocklist.
func (r *SQLBlocklistRepository) IsBlocked(ip string) (bool, error) {
	const query = `SELECT 1 FROM blocked_ips WHERE ip = ?`

	var one int
	err := r.db.QueryRow(query, ip).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		r.logger.Database().Error("Blocklist lookup failed", "error", err.Error(), "ip", ip)
		return false, err
	}
	return true, nil
}

// Add inserts or refreshes a blocklist entry.
func (r *SQLBlocklistRepository) Add(ip, reason string) error {
	const query = `
		INSERT INTO blocked_ips (ip, reason, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(ip) DO UPDATE SET reason = excluded.reason`

	_, err := r.db.Exec(query, ip, reason, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		r.logger.Database().Error("Blocklist insert failed", "error", err.Error(), "ip", ip)
		return err
	}

	r.logger.Database().Info("Blocklist entry added", "ip", ip)
	return nil
}

// Remove deletes a blocklist entry.
func (r *SQLBlocklistRepository) Remove(ip string) error {
	const query = `DELETE FROM blocked_ips WHERE ip = ?`

	_, err := r.db.Exec(query, ip)
	if err != nil {
		r.logger.Database().Error("Blocklist delete failed", "error", err.Error(), "ip", ip)
		return err
	}

	r.logger.Database().Info("Blocklist entry removed", "ip", ip)
	return nil
}

// List returns all blocklist entries, newest first.
func (r *SQLBlocklistRepository) List() ([]user.BlockedIP, error) {
	const query = `
		SELECT ip, reason, created_at
		FROM blocked_ips
		ORDER BY created_at DESC`

	rows, err := r.db.Query(query)
	if err != nil {
		r.logger.Database().Error("Blocklist list failed", "error", err.Error())
		return nil, err
	}
	defer rows.Close()

	var out []user.BlockedIP
	for rows.Next() {
		var entry user.BlockedIP
		var reason sql.NullString
		var createdAtStr string
		if err := rows.Scan(&entry.IP, &reason, &createdAtStr); err != nil {
			return nil, err
		}
		entry.Reason = reason.String
		entry.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
		out = append(out, entry)
	}
	return out, rows.Err()
}
