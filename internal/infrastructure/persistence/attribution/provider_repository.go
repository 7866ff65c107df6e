package attribution

import (
	"database/sql"
	"time"

	"github.com/LeadSpringHQ/leadspring-go/internal/domain/attribution"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/persistence/database"
)

// SQLProviderConfigRepository is the SQL-based implementation of the
// ProviderConfigRepository. One row per provider; only one live
// credential set per provider is supported.
type SQLProviderConfigRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLProviderConfigRepository creates a new instance of the repository.
func NewSQLProviderConfigRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLProviderConfigRepository {
	return &SQLProviderConfigRepository{
		db:     db,
		logger: logger,
	}
}

// Find retrieves a provider's credential row, nil when never connected.
func (r *SQLProviderConfigRepository) Find(provider attribution.Provider) (*attribution.ProviderConfig, error) {
	const query = `
		SELECT provider, access_token_enc, refresh_token_enc, client_secret_enc,
		       client_id, account_id, token_expiry, connected_at, enabled
		FROM provider_configs
		WHERE provider = ?`

	start := time.Now()
	r.logger.Database().Debug("Loading provider config", "provider", provider)

	var config attribution.ProviderConfig
	var accessEnc, refreshEnc, secretEnc, clientID, accountID sql.NullString
	var tokenExpiryStr, connectedAtStr sql.NullString

	err := r.db.QueryRow(query, string(provider)).Scan(
		&config.Provider,
		&accessEnc,
		&refreshEnc,
		&secretEnc,
		&clientID,
		&accountID,
		&tokenExpiryStr,
		&connectedAtStr,
		&config.Enabled,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Never connected
		}
		r.logger.Database().Error("Failed to load provider config", "error", err.Error(), "provider", provider)
		return nil, err
	}

	config.AccessTokenEnc = accessEnc.String
	config.RefreshTokenEnc = refreshEnc.String
	config.ClientSecretEnc = secretEnc.String
	config.ClientID = clientID.String
	config.AccountID = accountID.String
	if tokenExpiryStr.Valid && tokenExpiryStr.String != "" {
		if t, err := time.Parse(time.RFC3339, tokenExpiryStr.String); err == nil {
			config.TokenExpiry = &t
		}
	}
	if connectedAtStr.Valid && connectedAtStr.String != "" {
		if t, err := time.Parse(time.RFC3339, connectedAtStr.String); err == nil {
			config.ConnectedAt = &t
		}
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return &config, nil
}

// Upsert writes a full credential row, used by the OAuth connect flow.
func (r *SQLProviderConfigRepository) Upsert(config *attribution.ProviderConfig) error {
	const query = `
		INSERT INTO provider_configs (provider, access_token_enc, refresh_token_enc,
		                              client_secret_enc, client_id, account_id,
		                              token_expiry, connected_at, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			access_token_enc = excluded.access_token_enc,
			refresh_token_enc = excluded.refresh_token_enc,
			client_secret_enc = excluded.client_secret_enc,
			client_id = excluded.client_id,
			account_id = excluded.account_id,
			token_expiry = excluded.token_expiry,
			connected_at = excluded.connected_at,
			enabled = excluded.enabled`

	start := time.Now()
	r.logger.Database().Debug("Upserting provider config", "provider", config.Provider)

	var tokenExpiry, connectedAt any
	if config.TokenExpiry != nil {
		tokenExpiry = config.TokenExpiry.UTC().Format(time.RFC3339)
	}
	if config.ConnectedAt != nil {
		connectedAt = config.ConnectedAt.UTC().Format(time.RFC3339)
	}

	_, err := r.db.Exec(
		query,
		string(config.Provider),
		config.AccessTokenEnc,
		config.RefreshTokenEnc,
		config.ClientSecretEnc,
		config.ClientID,
		config.AccountID,
		tokenExpiry,
		connectedAt,
		config.Enabled,
	)
	if err != nil {
		r.logger.Database().Error("Provider config upsert failed", "error", err.Error(), "provider", config.Provider)
		return err
	}

	r.logger.Database().Info("Provider config upsert completed", "provider", config.Provider, "duration", time.Since(start))
	return nil
}

// UpdateTokens persists a refreshed credential set. This is the only
// token mutation path outside the initial OAuth handshake. An empty
// refreshTokenEnc keeps the stored refresh token.
func (r *SQLProviderConfigRepository) UpdateTokens(provider attribution.Provider, accessTokenEnc, refreshTokenEnc string, expiry time.Time) error {
	const query = `
		UPDATE provider_configs
		SET access_token_enc = ?,
		    refresh_token_enc = COALESCE(NULLIF(?, ''), refresh_token_enc),
		    token_expiry = ?
		WHERE provider = ?`

	start := time.Now()

	_, err := r.db.Exec(
		query,
		accessTokenEnc,
		refreshTokenEnc,
		expiry.UTC().Format(time.RFC3339),
		string(provider),
	)
	if err != nil {
		r.logger.Database().Error("Provider token update failed", "error", err.Error(), "provider", provider)
		return err
	}

	r.logger.Database().Info("Provider tokens refreshed", "provider", provider, "expiry", expiry, "duration", time.Since(start))
	return nil
}

// Disconnect clears a provider's credential row.
func (r *SQLProviderConfigRepository) Disconnect(provider attribution.Provider) error {
	const query = `DELETE FROM provider_configs WHERE provider = ?`

	_, err := r.db.Exec(query, string(provider))
	if err != nil {
		r.logger.Database().Error("Provider disconnect failed", "error", err.Error(), "provider", provider)
		return err
	}

	r.logger.Database().Info("Provider disconnected", "provider", provider)
	return nil
}
