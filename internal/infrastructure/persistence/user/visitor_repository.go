// Package user provides the concrete SQL-based implementations of
// the user domain repositories (Visitor, Lead, Blocklist).
package user

import (
	"database/sql"
	"time"

	"github.com/LeadSpringHQ/leadspring-go/internal/domain/user"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/persistence/database"
)

// SQLVisitorRepository is the SQL-based implementation of the VisitorRepository.
type SQLVisitorRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLVisitorRepository creates a new instance of the repository.
func NewSQLVisitorRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLVisitorRepository {
	return &SQLVisitorRepository{
		db:     db,
		logger: logger,
	}
}

// FindByID retrieves a Visitor by its click identifier.
func (r *SQLVisitorRepository) FindByID(id string) (*user.Visitor, error) {
	const query = `
		SELECT id, gclid, msclkid, fbclid, fbp, ip, user_agent,
		       landing_path, converted, lead_id, created_at
		FROM visitors
		WHERE id = ?`

	start := time.Now()
	r.logger.Database().Debug("Loading visitor by ID", "id", id)

	row := r.db.QueryRow(query, id)
	visitor, err := r.scanVisitor(row)
	if err != nil {
		r.logger.Database().Error("Failed to load visitor by ID", "error", err.Error(), "id", id)
		return nil, err
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return visitor, nil
}

// Store saves a new Visitor to the database.
func (r *SQLVisitorRepository) Store(visitor *user.Visitor) error {
	const query = `
		INSERT INTO visitors (id, gclid, msclkid, fbclid, fbp, ip, user_agent,
		                      landing_path, converted, lead_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	start := time.Now()
	r.logger.Database().Debug("Executing visitor insert", "id", visitor.ID)

	_, err := r.db.Exec(
		query,
		visitor.ID,
		visitor.GCLID,
		visitor.MSCLKID,
		visitor.FBCLID,
		visitor.FBP,
		visitor.IP,
		visitor.UserAgent,
		visitor.LandingPath,
		visitor.Converted,
		visitor.LeadID,
		visitor.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		r.logger.Database().Error("Visitor insert failed", "error", err.Error(), "id", visitor.ID)
		return err
	}

	r.logger.Database().Info("Visitor insert completed", "id", visitor.ID, "duration", time.Since(start))
	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return nil
}

// Update modifies an existing Visitor in the database.
func (r *SQLVisitorRepository) Update(visitor *user.Visitor) error {
	const query = `
		UPDATE visitors
		SET gclid = ?, msclkid = ?, fbclid = ?, fbp = ?, ip = ?, user_agent = ?,
		    landing_path = ?, converted = ?, lead_id = ?
		WHERE id = ?`

	start := time.Now()
	r.logger.Database().Debug("Executing visitor update", "id", visitor.ID)

	_, err := r.db.Exec(
		query,
		visitor.GCLID,
		visitor.MSCLKID,
		visitor.FBCLID,
		visitor.FBP,
		visitor.IP,
		visitor.UserAgent,
		visitor.LandingPath,
		visitor.Converted,
		visitor.LeadID,
		visitor.ID,
	)
	if err != nil {
		r.logger.Database().Error("Visitor update failed", "error", err.Error(), "id", visitor.ID)
		return err
	}

	r.logger.Database().Info("Visitor update completed", "id", visitor.ID, "duration", time.Since(start))
	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return nil
}

// DeleteUnconvertedBefore removes unconverted visitors created before the
// cutoff. Returns the number of deleted rows.
func (r *SQLVisitorRepository) DeleteUnconvertedBefore(cutoff time.Time) (int64, error) {
	const query = `
		DELETE FROM visitors
		WHERE converted = 0 AND created_at < ?`

	start := time.Now()

	res, err := r.db.Exec(query, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		r.logger.Database().Error("Visitor retention delete failed", "error", err.Error())
		return 0, err
	}

	deleted, _ := res.RowsAffected()
	r.logger.Database().Info("Visitor retention delete completed", "deleted", deleted, "duration", time.Since(start))
	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return deleted, nil
}

// scanVisitor is a helper function to scan a sql.Row into a Visitor struct.
func (r *SQLVisitorRepository) scanVisitor(row *sql.Row) (*user.Visitor, error) {
	var visitor user.Visitor
	var gclid, msclkid, fbclid, fbp, ip, userAgent, landingPath, leadID sql.NullString
	var createdAtStr string

	err := row.Scan(
		&visitor.ID,
		&gclid,
		&msclkid,
		&fbclid,
		&fbp,
		&ip,
		&userAgent,
		&landingPath,
		&visitor.Converted,
		&leadID,
		&createdAtStr,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, err
	}

	visitor.GCLID = gclid.String
	visitor.MSCLKID = msclkid.String
	visitor.FBCLID = fbclid.String
	visitor.FBP = fbp.String
	visitor.IP = ip.String
	visitor.UserAgent = userAgent.String
	visitor.LandingPath = landingPath.String
	if leadID.Valid {
		lid := leadID.String
		visitor.LeadID = &lid
	}

	visitor.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		// Try alternative timestamp format if RFC3339 fails
		visitor.CreatedAt, err = time.Parse("2006-01-02 15:04:05", createdAtStr)
		if err != nil {
			return nil, err
		}
	}

	return &visitor, nil
}
