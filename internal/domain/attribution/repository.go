// Package attribution defines the conversion-attribution entities: the
// event ledger, postback routing configs, provider credentials, and the
// interfaces for persisting them.
package attribution

import "time"

// Provider identifies an external channel or credential owner.
type Provider string

const (
	ProviderGoogleAds    Provider = "google_ads"
	ProviderMicrosoftAds Provider = "microsoft_ads"
	ProviderMeta         Provider = "meta"
	ProviderHubSpot      Provider = "hubspot"
)

// EventStatus is the lifecycle state of a ledger row.
type EventStatus string

const (
	// StatusPending is written before a channel send is attempted.
	StatusPending EventStatus = "pending"
	// StatusAuto marks the transitional lead auto-event row before its
	// async send resolves.
	StatusAuto EventStatus = "auto"
	// StatusSent means the channel call succeeded. Terminal.
	StatusSent EventStatus = "sent"
	// StatusFailed means the channel call was attempted and rejected or
	// erred. Retriable by an admin.
	StatusFailed EventStatus = "failed"
	// StatusLogged means no channel was applicable. Terminal.
	StatusLogged EventStatus = "logged"
	// StatusBlocked means the lead's IP is blocklisted and every channel
	// send was suppressed. Terminal.
	StatusBlocked EventStatus = "blocked"
)

// Source tags where a ledger row came from: the bare ingest path or a
// specific channel adapter.
const (
	SourcePostback  = "postback" // ingest row without a channel
	SourceGoogle    = "google_ads"
	SourceMicrosoft = "microsoft_ads"
	SourceMeta      = "meta"
	SourceCRM       = "hubspot"
)

// ConversionEvent is one ledger row: an append-only record of a single
// channel-send attempt (or of an ingest that had no applicable channel).
type ConversionEvent struct {
	ID        string  `json:"id"`
	LeadID    *string `json:"leadId,omitempty"` // nullable: postback may precede any lead
	VisitorID string  `json:"visitorId,omitempty"`
	EventName string  `json:"eventName"`

	// Click identifiers snapshotted at send time.
	GCLID   string `json:"gclid,omitempty"`
	MSCLKID string `json:"msclkid,omitempty"`
	FBCLID  string `json:"fbclid,omitempty"`
	FBP     string `json:"fbp,omitempty"`

	Value      float64 `json:"value,omitempty"`
	DebtAmount float64 `json:"debtAmount,omitempty"`
	Revenue    float64 `json:"revenue,omitempty"`
	Currency   string  `json:"currency,omitempty"`

	TransactionID string      `json:"transactionId,omitempty"`
	Source        string      `json:"source"`
	Status        EventStatus `json:"status"`
	ErrorDetail   string      `json:"errorDetail,omitempty"`
	// Payload snapshots the richest channel body (the Meta server event).
	Payload string `json:"payload,omitempty"`

	CreatedAt time.Time  `json:"createdAt"`
	SentAt    *time.Time `json:"sentAt,omitempty"`
}

// HasClickID reports whether the event carries the click identifier the
// given channel requires. Meta and the CRM do not require one.
func (e *ConversionEvent) HasClickID(source string) bool {
	switch source {
	case SourceGoogle:
		return e.GCLID != ""
	case SourceMicrosoft:
		return e.MSCLKID != ""
	default:
		return true
	}
}

// PostbackConfig maps an internal event name to per-channel targets.
type PostbackConfig struct {
	ID        string `json:"id"`
	EventName string `json:"eventName"` // case-normalized, unique among active configs

	GoogleConversionAction string `json:"googleConversionAction,omitempty"`

	MicrosoftEnabled  bool   `json:"microsoftEnabled"`
	MicrosoftGoalName string `json:"microsoftGoalName,omitempty"`

	MetaEnabled   bool   `json:"metaEnabled"`
	MetaEventName string `json:"metaEventName,omitempty"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	Changed   time.Time `json:"changed"`
}

// ProviderConfig holds one provider's credential set. Token ciphertexts
// are vault-encrypted; a provider is connected iff both access and
// refresh ciphertexts are present (Meta, which has no refresh flow, is
// connected on access token alone).
type ProviderConfig struct {
	Provider        Provider   `json:"provider"`
	AccessTokenEnc  string     `json:"-"`
	RefreshTokenEnc string     `json:"-"`
	ClientSecretEnc string     `json:"-"`
	ClientID        string     `json:"clientId,omitempty"`
	AccountID       string     `json:"accountId,omitempty"` // pixel id for Meta, customer id elsewhere
	TokenExpiry     *time.Time `json:"tokenExpiry,omitempty"`
	ConnectedAt     *time.Time `json:"connectedAt,omitempty"`
	Enabled         bool       `json:"enabled"`
}

// Connected reports whether the provider has a usable credential set.
func (p *ProviderConfig) Connected() bool {
	if p.Provider == ProviderMeta {
		return p.AccessTokenEnc != ""
	}
	return p.AccessTokenEnc != "" && p.RefreshTokenEnc != ""
}

// EventRepository defines the ledger persistence operations.
type EventRepository interface {
	FindByID(id string) (*ConversionEvent, error)
	Store(event *ConversionEvent) error
	// UpdateOutcome transitions a row's status and error detail; sentAt is
	// stamped when status is sent.
	UpdateOutcome(id string, status EventStatus, errorDetail string) error
	// FindRecentDuplicate returns the newest row matching the correlation
	// key, event name and source created after the cutoff, nil when none.
	FindRecentDuplicate(visitorID, eventName, source string, cutoff time.Time) (*ConversionEvent, error)
	// List returns rows newest first with lead contact fields joined.
	List(limit, offset int) ([]*LedgerEntry, int, error)
}

// LedgerEntry is a ledger row joined with its lead for admin listing.
type LedgerEntry struct {
	ConversionEvent
	LeadFirstName string `json:"leadFirstName,omitempty"`
	LeadLastName  string `json:"leadLastName,omitempty"`
	LeadEmail     string `json:"leadEmail,omitempty"`
}

// PostbackConfigRepository defines routing-config persistence operations.
type PostbackConfigRepository interface {
	FindByID(id string) (*PostbackConfig, error)
	// FindActiveByEventName resolves the routing for a normalized event
	// name, nil when no active config exists.
	FindActiveByEventName(eventName string) (*PostbackConfig, error)
	FindAll() ([]*PostbackConfig, error)
	Store(config *PostbackConfig) error
	Update(config *PostbackConfig) error
	Delete(id string) error
}

// ProviderConfigRepository defines credential persistence operations.
// Persisting refreshed credentials is the only mutation path for token
// fields outside the initial OAuth handshake.
type ProviderConfigRepository interface {
	Find(provider Provider) (*ProviderConfig, error)
	Upsert(config *ProviderConfig) error
	// UpdateTokens persists a refreshed credential set. An empty
	// refreshTokenEnc keeps the stored refresh token.
	UpdateTokens(provider Provider, accessTokenEnc, refreshTokenEnc string, expiry time.Time) error
	Disconnect(provider Provider) error
}
