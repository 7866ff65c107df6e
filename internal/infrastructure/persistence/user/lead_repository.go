package user

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/LeadSpringHQ/leadspring-go/internal/domain/user"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/persistence/database"
)

// SQLLeadRepository is the SQL-based implementation of the LeadRepository.
type SQLLeadRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLLeadRepository creates a new instance of the repository.
func NewSQLLeadRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLLeadRepository {
	return &SQLLeadRepository{
		db:     db,
		logger: logger,
	}
}

const leadColumns = `id, visitor_id, first_name, last_name, email, phone,
	       gclid, msclkid, fbclid, fbp, debt_amount, revenue,
	       status, disposition, stage, contract_date, signed_total,
	       crm_contact_id, blocked, extra, created_at, changed`

// FindByID retrieves a Lead by its unique identifier.
func (r *SQLLeadRepository) FindByID(id string) (*user.Lead, error) {
	const query = `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE id = ?`

	start := time.Now()
	r.logger.Database().Debug("Loading lead by ID", "id", id)

	row := r.db.QueryRow(query, id)
	lead, err := r.scanLead(row)
	if err != nil {
		r.logger.Database().Error("Failed to load lead by ID", "error", err.Error(), "id", id)
		return nil, err
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return lead, nil
}

// FindByEmail retrieves a Lead by its email address.
func (r *SQLLeadRepository) FindByEmail(email string) (*user.Lead, error) {
	const query = `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE email = ?`

	start := time.Now()
	r.logger.Database().Debug("Loading lead by email", "email", email)

	row := r.db.QueryRow(query, email)
	lead, err := r.scanLead(row)
	if err != nil {
		r.logger.Database().Error("Failed to load lead by email", "error", err.Error(), "email", email)
		return nil, err
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return lead, nil
}

// Store saves a new Lead to the database.
func (r *SQLLeadRepository) Store(lead *user.Lead) error {
	const query = `
		INSERT INTO leads (` + leadColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	start := time.Now()
	r.logger.Database().Debug("Executing lead insert", "id", lead.ID, "email", lead.Email)

	extra, err := marshalExtra(lead.Extra)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(
		query,
		lead.ID,
		lead.VisitorID,
		lead.FirstName,
		lead.LastName,
		lead.Email,
		lead.Phone,
		lead.GCLID,
		lead.MSCLKID,
		lead.FBCLID,
		lead.FBP,
		lead.DebtAmount,
		lead.Revenue,
		lead.Status,
		lead.Disposition,
		lead.Stage,
		lead.ContractDate,
		lead.SignedTotal,
		lead.CRMContactID,
		lead.Blocked,
		extra,
		lead.CreatedAt.UTC().Format(time.RFC3339),
		lead.Changed.UTC().Format(time.RFC3339),
	)
	if err != nil {
		r.logger.Database().Error("Lead insert failed", "error", err.Error(), "id", lead.ID, "email", lead.Email)
		return err
	}

	r.logger.Database().Info("Lead insert completed", "id", lead.ID, "email", lead.Email, "duration", time.Since(start))
	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return nil
}

// Update merges non-zero fields into the stored row. Populated columns are
// never cleared by an empty inbound value.
func (r *SQLLeadRepository) Update(lead *user.Lead) error {
	const query = `
		UPDATE leads
		SET first_name = COALESCE(NULLIF(?, ''), first_name),
		    last_name = COALESCE(NULLIF(?, ''), last_name),
		    email = COALESCE(NULLIF(?, ''), email),
		    phone = COALESCE(NULLIF(?, ''), phone),
		    gclid = COALESCE(NULLIF(?, ''), gclid),
		    msclkid = COALESCE(NULLIF(?, ''), msclkid),
		    fbclid = COALESCE(NULLIF(?, ''), fbclid),
		    fbp = COALESCE(NULLIF(?, ''), fbp),
		    debt_amount = CASE WHEN ? > 0 THEN ? ELSE debt_amount END,
		    revenue = CASE WHEN ? > 0 THEN ? ELSE revenue END,
		    status = COALESCE(NULLIF(?, ''), status),
		    disposition = COALESCE(NULLIF(?, ''), disposition),
		    stage = COALESCE(NULLIF(?, ''), stage),
		    contract_date = COALESCE(NULLIF(?, ''), contract_date),
		    signed_total = COALESCE(NULLIF(?, ''), signed_total),
		    extra = COALESCE(NULLIF(?, ''), extra),
		    changed = ?
		WHERE id = ?`

	start := time.Now()
	r.logger.Database().Debug("Executing lead merge update", "id", lead.ID)

	extra, err := marshalExtra(lead.Extra)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(
		query,
		lead.FirstName,
		lead.LastName,
		lead.Email,
		lead.Phone,
		lead.GCLID,
		lead.MSCLKID,
		lead.FBCLID,
		lead.FBP,
		lead.DebtAmount, lead.DebtAmount,
		lead.Revenue, lead.Revenue,
		lead.Status,
		lead.Disposition,
		lead.Stage,
		lead.ContractDate,
		lead.SignedTotal,
		extra,
		time.Now().UTC().Format(time.RFC3339),
		lead.ID,
	)
	if err != nil {
		r.logger.Database().Error("Lead update failed", "error", err.Error(), "id", lead.ID)
		return err
	}

	r.logger.Database().Info("Lead update completed", "id", lead.ID, "duration", time.Since(start))
	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return nil
}

// SetCRMContactID records the CRM cross-reference exactly once. A row with
// a non-empty crm_contact_id is left untouched.
func (r *SQLLeadRepository) SetCRMContactID(id, crmContactID string) error {
	const query = `
		UPDATE leads
		SET crm_contact_id = ?, changed = ?
		WHERE id = ? AND (crm_contact_id IS NULL OR crm_contact_id = '')`

	start := time.Now()

	_, err := r.db.Exec(query, crmContactID, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		r.logger.Database().Error("CRM contact ID update failed", "error", err.Error(), "id", id)
		return err
	}

	r.logger.Database().Info("CRM contact ID recorded", "id", id, "crmContactId", crmContactID)
	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return nil
}

// SetBlocked flips the blocked flag on a lead.
func (r *SQLLeadRepository) SetBlocked(id string, blocked bool) error {
	const query = `
		UPDATE leads
		SET blocked = ?, changed = ?
		WHERE id = ?`

	_, err := r.db.Exec(query, blocked, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		r.logger.Database().Error("Lead blocked update failed", "error", err.Error(), "id", id)
		return err
	}

	r.logger.Database().Info("Lead blocked flag updated", "id", id, "blocked", blocked)
	return nil
}

// scanLead is a helper function to scan a sql.Row into a Lead struct.
func (r *SQLLeadRepository) scanLead(row *sql.Row) (*user.Lead, error) {
	var lead user.Lead
	var visitorID, firstName, lastName, email, phone sql.NullString
	var gclid, msclkid, fbclid, fbp sql.NullString
	var status, disposition, stage, contractDate, signedTotal sql.NullString
	var crmContactID, extra sql.NullString
	var createdAtStr, changedStr string

	err := row.Scan(
		&lead.ID,
		&visitorID,
		&firstName,
		&lastName,
		&email,
		&phone,
		&gclid,
		&msclkid,
		&fbclid,
		&fbp,
		&lead.DebtAmount,
		&lead.Revenue,
		&status,
		&disposition,
		&stage,
		&contractDate,
		&signedTotal,
		&crmContactID,
		&lead.Blocked,
		&extra,
		&createdAtStr,
		&changedStr,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, err
	}

	lead.VisitorID = visitorID.String
	lead.FirstName = firstName.String
	lead.LastName = lastName.String
	lead.Email = email.String
	lead.Phone = phone.String
	lead.GCLID = gclid.String
	lead.MSCLKID = msclkid.String
	lead.FBCLID = fbclid.String
	lead.FBP = fbp.String
	lead.Status = status.String
	lead.Disposition = disposition.String
	lead.Stage = stage.String
	lead.ContractDate = contractDate.String
	lead.SignedTotal = signedTotal.String
	lead.CRMContactID = crmContactID.String

	if extra.Valid && extra.String != "" {
		if err := json.Unmarshal([]byte(extra.String), &lead.Extra); err != nil {
			return nil, err
		}
	}

	lead.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		lead.CreatedAt, err = time.Parse("2006-01-02 15:04:05", createdAtStr)
		if err != nil {
			return nil, err
		}
	}
	lead.Changed, err = time.Parse(time.RFC3339, changedStr)
	if err != nil {
		lead.Changed, err = time.Parse("2006-01-02 15:04:05", changedStr)
		if err != nil {
			return nil, err
		}
	}

	return &lead, nil
}

func marshalExtra(extra map[string]string) (string, error) {
	if len(extra) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(extra)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
