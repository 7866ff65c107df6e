package attribution

import (
	"database/sql"
	"time"

	"github.com/LeadSpringHQ/leadspring-go/internal/domain/attribution"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/persistence/database"
)

// SQLPostbackConfigRepository is the SQL-based implementation of the
// PostbackConfigRepository.
type SQLPostbackConfigRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLPostbackConfigRepository creates a new instance of the repository.
func NewSQLPostbackConfigRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLPostbackConfigRepository {
	return &SQLPostbackConfigRepository{
		db:     db,
		logger: logger,
	}
}

const postbackConfigColumns = `id, event_name, google_conversion_action,
	       microsoft_enabled, microsoft_goal_name, meta_enabled, meta_event_name,
	       active, created_at, changed`

// FindByID retrieves a PostbackConfig by its unique identifier.
func (r *SQLPostbackConfigRepository) FindByID(id string) (*attribution.PostbackConfig, error) {
	const query = `
		SELECT ` + postbackConfigColumns + `
		FROM postback_configs
		WHERE id = ?`

	row := r.db.QueryRow(query, id)
	config, err := scanPostbackConfig(row)
	if err != nil {
		r.logger.Database().Error("Failed to load postback config", "error", err.Error(), "id", id)
		return nil, err
	}
	return config, nil
}

// FindActiveByEventName resolves routing for a normalized event name.
// An inactive config is treated as no routing for the event.
func (r *SQLPostbackConfigRepository) FindActiveByEventName(eventName string) (*attribution.PostbackConfig, error) {
	const query = `
		SELECT ` + postbackConfigColumns + `
		FROM postback_configs
		WHERE event_name = ? AND active = 1`

	start := time.Now()
	r.logger.Database().Debug("Loading postback config by event name", "eventName", eventName)

	row := r.db.QueryRow(query, eventName)
	config, err := scanPostbackConfig(row)
	if err != nil {
		r.logger.Database().Error("Failed to load postback config by event name", "error", err.Error(), "eventName", eventName)
		return nil, err
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return config, nil
}

// FindAll returns every PostbackConfig, active and inactive.
func (r *SQLPostbackConfigRepository) FindAll() ([]*attribution.PostbackConfig, error) {
	const query = `
		SELECT ` + postbackConfigColumns + `
		FROM postback_configs
		ORDER BY event_name`

	rows, err := r.db.Query(query)
	if err != nil {
		r.logger.Database().Error("Postback config list failed", "error", err.Error())
		return nil, err
	}
	defer rows.Close()

	var out []*attribution.PostbackConfig
	for rows.Next() {
		config, err := scanPostbackConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, config)
	}
	return out, rows.Err()
}

// Store saves a new PostbackConfig.
func (r *SQLPostbackConfigRepository) Store(config *attribution.PostbackConfig) error {
	const query = `
		INSERT INTO postback_configs (` + postbackConfigColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Exec(
		query,
		config.ID,
		config.EventName,
		config.GoogleConversionAction,
		config.MicrosoftEnabled,
		config.MicrosoftGoalName,
		config.MetaEnabled,
		config.MetaEventName,
		config.Active,
		config.CreatedAt.UTC().Format(time.RFC3339),
		config.Changed.UTC().Format(time.RFC3339),
	)
	if err != nil {
		r.logger.Database().Error("Postback config insert failed", "error", err.Error(), "id", config.ID, "eventName", config.EventName)
		return err
	}

	r.logger.Database().Info("Postback config insert completed", "id", config.ID, "eventName", config.EventName)
	return nil
}

// Update modifies an existing PostbackConfig.
func (r *SQLPostbackConfigRepository) Update(config *attribution.PostbackConfig) error {
	const query = `
		UPDATE postback_configs
		SET event_name = ?, google_conversion_action = ?, microsoft_enabled = ?,
		    microsoft_goal_name = ?, meta_enabled = ?, meta_event_name = ?,
		    active = ?, changed = ?
		WHERE id = ?`

	_, err := r.db.Exec(
		query,
		config.EventName,
		config.GoogleConversionAction,
		config.MicrosoftEnabled,
		config.MicrosoftGoalName,
		config.MetaEnabled,
		config.MetaEventName,
		config.Active,
		time.Now().UTC().Format(time.RFC3339),
		config.ID,
	)
	if err != nil {
		r.logger.Database().Error("Postback config update failed", "error", err.Error(), "id", config.ID)
		return err
	}

	r.logger.Database().Info("Postback config update completed", "id", config.ID, "eventName", config.EventName)
	return nil
}

// Delete removes a PostbackConfig.
func (r *SQLPostbackConfigRepository) Delete(id string) error {
	const query = `DELETE FROM postback_configs WHERE id = ?`

	_, err := r.db.Exec(query, id)
	if err != nil {
		r.logger.Database().Error("Postback config delete failed", "error", err.Error(), "id", id)
		return err
	}

	r.logger.Database().Info("Postback config deleted", "id", id)
	return nil
}

func scanPostbackConfig(row rowScanner) (*attribution.PostbackConfig, error) {
	var config attribution.PostbackConfig
	var googleAction, microsoftGoal, metaEvent sql.NullString
	var createdAtStr, changedStr string

	err := row.Scan(
		&config.ID,
		&config.EventName,
		&googleAction,
		&config.MicrosoftEnabled,
		&microsoftGoal,
		&config.MetaEnabled,
		&metaEvent,
		&config.Active,
		&createdAtStr,
		&changedStr,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, err
	}

	config.GoogleConversionAction = googleAction.String
	config.MicrosoftGoalName = microsoftGoal.String
	config.MetaEventName = metaEvent.String
	config.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
	config.Changed, _ = time.Parse(time.RFC3339, changedStr)

	return &config, nil
}
