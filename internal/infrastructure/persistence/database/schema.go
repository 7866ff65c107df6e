// Package database provides schema bootstrap for the attribution store.
package database

// Migrate creates the attribution tables when they do not exist yet.
// The store is single-writer; no migration versioning is carried.
func (db *DB) Migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS visitors (
			id TEXT PRIMARY KEY,
			gclid TEXT,
			msclkid TEXT,
			fbclid TEXT,
			fbp TEXT,
			ip TEXT,
			user_agent TEXT,
			landing_path TEXT,
			converted INTEGER NOT NULL DEFAULT 0,
			lead_id TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS leads (
			id TEXT PRIMARY KEY,
			visitor_id TEXT,
			first_name TEXT,
			last_name TEXT,
			email TEXT,
			phone TEXT,
			gclid TEXT,
			msclkid TEXT,
			fbclid TEXT,
			fbp TEXT,
			debt_amount REAL NOT NULL DEFAULT 0,
			revenue REAL NOT NULL DEFAULT 0,
			status TEXT,
			disposition TEXT,
			stage TEXT,
			contract_date TEXT,
			signed_total TEXT,
			crm_contact_id TEXT,
			blocked INTEGER NOT NULL DEFAULT 0,
			extra TEXT,
			created_at TEXT NOT NULL,
			changed TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS provider_configs (
			provider TEXT PRIMARY KEY,
			access_token_enc TEXT,
			refresh_token_enc TEXT,
			client_secret_enc TEXT,
			client_id TEXT,
			account_id TEXT,
			token_expiry TEXT,
			connected_at TEXT,
			enabled INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS postback_configs (
			id TEXT PRIMARY KEY,
			event_name TEXT NOT NULL,
			google_conversion_action TEXT,
			microsoft_enabled INTEGER NOT NULL DEFAULT 0,
			microsoft_goal_name TEXT,
			meta_enabled INTEGER NOT NULL DEFAULT 0,
			meta_event_name TEXT,
			active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			changed TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversion_events (
			id TEXT PRIMARY KEY,
			lead_id TEXT,
			visitor_id TEXT,
			event_name TEXT NOT NULL,
			gclid TEXT,
			msclkid TEXT,
			fbclid TEXT,
			fbp TEXT,
			value REAL NOT NULL DEFAULT 0,
			debt_amount REAL NOT NULL DEFAULT 0,
			revenue REAL NOT NULL DEFAULT 0,
			currency TEXT,
			transaction_id TEXT,
			source TEXT NOT NULL,
			status TEXT NOT NULL,
			error_detail TEXT,
			payload TEXT,
			created_at TEXT NOT NULL,
			sent_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS blocked_ips (
			ip TEXT PRIMARY KEY,
			reason TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_visitors_lead ON visitors(lead_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_visitor ON conversion_events(visitor_id, event_name, source, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_lead ON conversion_events(lead_id)`,
		`CREATE INDEX IF NOT EXISTS idx_postback_configs_event ON postback_configs(event_name, active)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
