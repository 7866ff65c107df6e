// Package attribution provides the concrete SQL-based implementations of
// the attribution domain repositories (ConversionEvent ledger,
// PostbackConfig, ProviderConfig).
package attribution

import (
	"database/sql"
	"time"

	"github.com/LeadSpringHQ/leadspring-go/internal/domain/attribution"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/persistence/database"
)

// SQLEventRepository is the SQL-based implementation of the EventRepository.
type SQLEventRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLEventRepository creates a new instance of the repository.
func NewSQLEventRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLEventRepository {
	return &SQLEventRepository{
		db:     db,
		logger: logger,
	}
}

const eventColumns = `id, lead_id, visitor_id, event_name, gclid, msclkid,
	       fbclid, fbp, value, debt_amount, revenue, currency,
	       transaction_id, source, status, error_detail, payload,
	       created_at, sent_at`

// FindByID retrieves a ledger row by its unique identifier.
func (r *SQLEventRepository) FindByID(id string) (*attribution.ConversionEvent, error) {
	const query = `
		SELECT ` + eventColumns + `
		FROM conversion_events
		WHERE id = ?`

	start := time.Now()
	r.logger.Database().Debug("Loading conversion event by ID", "id", id)

	row := r.db.QueryRow(query, id)
	event, err := scanEvent(row)
	if err != nil {
		r.logger.Database().Error("Failed to load conversion event", "error", err.Error(), "id", id)
		return nil, err
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return event, nil
}

// Store appends a new ledger row.
func (r *SQLEventRepository) Store(event *attribution.ConversionEvent) error {
	const query = `
		INSERT INTO conversion_events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	start := time.Now()
	r.logger.Database().Debug("Executing conversion event insert", "id", event.ID, "source", event.Source, "status", event.Status)

	var sentAt any
	if event.SentAt != nil {
		sentAt = event.SentAt.UTC().Format(time.RFC3339)
	}

	_, err := r.db.Exec(
		query,
		event.ID,
		event.LeadID,
		event.VisitorID,
		event.EventName,
		event.GCLID,
		event.MSCLKID,
		event.FBCLID,
		event.FBP,
		event.Value,
		event.DebtAmount,
		event.Revenue,
		event.Currency,
		event.TransactionID,
		event.Source,
		string(event.Status),
		event.ErrorDetail,
		event.Payload,
		event.CreatedAt.UTC().Format(time.RFC3339),
		sentAt,
	)
	if err != nil {
		r.logger.Database().Error("Conversion event insert failed", "error", err.Error(), "id", event.ID)
		return err
	}

	r.logger.Database().Info("Conversion event insert completed", "id", event.ID, "source", event.Source, "status", event.Status, "duration", time.Since(start))
	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return nil
}

// UpdateOutcome transitions a ledger row's status. sent stamps sent_at.
func (r *SQLEventRepository) UpdateOutcome(id string, status attribution.EventStatus, errorDetail string) error {
	const query = `
		UPDATE conversion_events
		SET status = ?, error_detail = ?,
		    sent_at = CASE WHEN ? = 'sent' THEN ? ELSE sent_at END
		WHERE id = ?`

	start := time.Now()

	_, err := r.db.Exec(
		query,
		string(status),
		errorDetail,
		string(status),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		r.logger.Database().Error("Conversion event outcome update failed", "error", err.Error(), "id", id, "status", status)
		return err
	}

	r.logger.Database().Info("Conversion event outcome updated", "id", id, "status", status, "duration", time.Since(start))
	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return nil
}

// FindRecentDuplicate returns the newest row matching the correlation key,
// event name and source created after the cutoff.
func (r *SQLEventRepository) FindRecentDuplicate(visitorID, eventName, source string, cutoff time.Time) (*attribution.ConversionEvent, error) {
	const query = `
		SELECT ` + eventColumns + `
		FROM conversion_events
		WHERE visitor_id = ? AND event_name = ? AND source = ? AND created_at > ?
		ORDER BY created_at DESC
		LIMIT 1`

	start := time.Now()

	row := r.db.QueryRow(query, visitorID, eventName, source, cutoff.UTC().Format(time.RFC3339))
	event, err := scanEvent(row)
	if err != nil {
		r.logger.Database().Error("Duplicate lookup failed", "error", err.Error(), "visitorId", visitorID, "eventName", eventName)
		return nil, err
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return event, nil
}

// List returns ledger rows newest first with lead contact fields joined,
// plus the total row count for pagination.
func (r *SQLEventRepository) List(limit, offset int) ([]*attribution.LedgerEntry, int, error) {
	const countQuery = `SELECT COUNT(*) FROM conversion_events`
	const query = `
		SELECT e.id, e.lead_id, e.visitor_id, e.event_name, e.gclid, e.msclkid,
		       e.fbclid, e.fbp, e.value, e.debt_amount, e.revenue, e.currency,
		       e.transaction_id, e.source, e.status, e.error_detail, e.payload,
		       e.created_at, e.sent_at,
		       l.first_name, l.last_name, l.email
		FROM conversion_events e
		LEFT JOIN leads l ON l.id = e.lead_id
		ORDER BY e.created_at DESC
		LIMIT ? OFFSET ?`

	start := time.Now()

	var total int
	if err := r.db.QueryRow(countQuery).Scan(&total); err != nil {
		r.logger.Database().Error("Ledger count failed", "error", err.Error())
		return nil, 0, err
	}

	rows, err := r.db.Query(query, limit, offset)
	if err != nil {
		r.logger.Database().Error("Ledger list failed", "error", err.Error())
		return nil, 0, err
	}
	defer rows.Close()

	var out []*attribution.LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return out, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*attribution.ConversionEvent, error) {
	var event attribution.ConversionEvent
	var leadID sql.NullString
	var visitorID, gclid, msclkid, fbclid, fbp, currency sql.NullString
	var transactionID, status, errorDetail, payload sql.NullString
	var createdAtStr string
	var sentAtStr sql.NullString

	err := row.Scan(
		&event.ID,
		&leadID,
		&visitorID,
		&event.EventName,
		&gclid,
		&msclkid,
		&fbclid,
		&fbp,
		&event.Value,
		&event.DebtAmount,
		&event.Revenue,
		&currency,
		&transactionID,
		&event.Source,
		&status,
		&errorDetail,
		&payload,
		&createdAtStr,
		&sentAtStr,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, err
	}

	if leadID.Valid {
		lid := leadID.String
		event.LeadID = &lid
	}
	event.VisitorID = visitorID.String
	event.GCLID = gclid.String
	event.MSCLKID = msclkid.String
	event.FBCLID = fbclid.String
	event.FBP = fbp.String
	event.Currency = currency.String
	event.TransactionID = transactionID.String
	event.Status = attribution.EventStatus(status.String)
	event.ErrorDetail = errorDetail.String
	event.Payload = payload.String

	event.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		event.CreatedAt, err = time.Parse("2006-01-02 15:04:05", createdAtStr)
		if err != nil {
			return nil, err
		}
	}
	if sentAtStr.Valid && sentAtStr.String != "" {
		t, err := time.Parse(time.RFC3339, sentAtStr.String)
		if err == nil {
			event.SentAt = &t
		}
	}

	return &event, nil
}

func scanLedgerEntry(rows *sql.Rows) (*attribution.LedgerEntry, error) {
	var entry attribution.LedgerEntry
	var leadID sql.NullString
	var visitorID, gclid, msclkid, fbclid, fbp, currency sql.NullString
	var transactionID, status, errorDetail, payload sql.NullString
	var createdAtStr string
	var sentAtStr sql.NullString
	var firstName, lastName, email sql.NullString

	err := rows.Scan(
		&entry.ID,
		&leadID,
		&visitorID,
		&entry.EventName,
		&gclid,
		&msclkid,
		&fbclid,
		&fbp,
		&entry.Value,
		&entry.DebtAmount,
		&entry.Revenue,
		&currency,
		&transactionID,
		&entry.Source,
		&status,
		&errorDetail,
		&payload,
		&createdAtStr,
		&sentAtStr,
		&firstName,
		&lastName,
		&email,
	)
	if err != nil {
		return nil, err
	}

	if leadID.Valid {
		lid := leadID.String
		entry.LeadID = &lid
	}
	entry.VisitorID = visitorID.String
	entry.GCLID = gclid.String
	entry.MSCLKID = msclkid.String
	entry.FBCLID = fbclid.String
	entry.FBP = fbp.String
	entry.Currency = currency.String
	entry.TransactionID = transactionID.String
	entry.Status = attribution.EventStatus(status.String)
	entry.ErrorDetail = errorDetail.String
	entry.Payload = payload.String
	entry.LeadFirstName = firstName.String
	entry.LeadLastName = lastName.String
	entry.LeadEmail = email.String

	entry.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		entry.CreatedAt, err = time.Parse("2006-01-02 15:04:05", createdAtStr)
		if err != nil {
			return nil, err
		}
	}
	if sentAtStr.Valid && sentAtStr.String != "" {
		t, err := time.Parse(time.RFC3339, sentAtStr.String)
		if err == nil {
			entry.SentAt = &t
		}
	}

	return &entry, nil
}
