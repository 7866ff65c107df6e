// Package user defines the visitor and lead entities and the interfaces
// for persisting them. These repositories abstract the data persistence
// details, ensuring the core application is clean and decoupled from the
// database.
package user

import "time"

// Visitor represents an ephemeral pre-conversion identity. It is created
// on first page view and mutated once, when a Lead is created from it.
type Visitor struct {
	ID          string    `json:"id"` // opaque click identifier, the cross-session correlation key
	GCLID       string    `json:"gclid,omitempty"`
	MSCLKID     string    `json:"msclkid,omitempty"`
	FBCLID      string    `json:"fbclid,omitempty"`
	FBP         string    `json:"fbp,omitempty"` // cookie-derived Meta browser id
	IP          string    `json:"ip,omitempty"`
	UserAgent   string    `json:"userAgent,omitempty"`
	LandingPath string    `json:"landingPath,omitempty"`
	Converted   bool      `json:"converted"`
	LeadID      *string   `json:"leadId,omitempty"` // set once at conversion
	CreatedAt   time.Time `json:"createdAt"`
}

// Lead represents a converted visitor. Fields arriving later (postbacks,
// CRM sync) are merged individually, never replaced wholesale.
type Lead struct {
	ID        string `json:"id"`
	VisitorID string `json:"visitorId,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`

	// Per-network click IDs, copied from the Visitor at submission time;
	// values present in the submission payload take precedence.
	GCLID   string `json:"gclid,omitempty"`
	MSCLKID string `json:"msclkid,omitempty"`
	FBCLID  string `json:"fbclid,omitempty"`
	FBP     string `json:"fbp,omitempty"`

	DebtAmount float64 `json:"debtAmount,omitempty"`
	Revenue    float64 `json:"revenue,omitempty"`

	// CRM pipeline fields merged from postbacks.
	Status       string `json:"status,omitempty"`
	Disposition  string `json:"disposition,omitempty"`
	Stage        string `json:"stage,omitempty"`
	ContractDate string `json:"contractDate,omitempty"`
	SignedTotal  string `json:"signedTotal,omitempty"`

	// CRMContactID is set at most once; a non-empty value means the lead
	// was already pushed.
	CRMContactID string `json:"crmContactId,omitempty"`

	// Blocked suppresses downstream channel sends but not ledger writes.
	Blocked bool `json:"blocked"`

	Extra map[string]string `json:"extra,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	Changed   time.Time `json:"changed"`
}

// VisitorRepository defines the operations for persisting Visitor entities.
type VisitorRepository interface {
	FindByID(id string) (*Visitor, error)
	Store(visitor *Visitor) error
	Update(visitor *Visitor) error
	DeleteUnconvertedBefore(cutoff time.Time) (int64, error)
}

// LeadRepository defines the operations for persisting Lead entities.
type LeadRepository interface {
	FindByID(id string) (*Lead, error)
	FindByEmail(email string) (*Lead, error)
	Store(lead *Lead) error
	// Update merges non-zero fields into the stored row (COALESCE-style);
	// it never clears a previously populated column.
	Update(lead *Lead) error
	SetCRMContactID(id, crmContactID string) error
	SetBlocked(id string, blocked bool) error
}

// BlocklistRepository manages the IP blocklist backing blocked-lead marking.
type BlocklistRepository interface {
	IsBlocked(ip string) (bool, error)
	Add(ip, reason string) error
	Remove(ip string) error
	List() ([]BlockedIP, error)
}

// BlockedIP is a single blocklist entry.
type BlockedIP struct {
	IP        string    `json:"ip"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
