package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/LeadSpringHQ/leadspring-go/internal/domain/attribution"
	"github.com/LeadSpringHQ/leadspring-go/internal/domain/user"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/channels"
)

// In-memory repository fakes shared by the service tests. They mirror
// the SQL repositories' merge semantics closely enough that the services
// cannot tell the difference.

type fakeVisitorRepo struct {
	mu       sync.Mutex
	visitors map[string]*user.Visitor
}

func newFakeVisitorRepo() *fakeVisitorRepo {
	return &fakeVisitorRepo{visitors: make(map[string]*user.Visitor)}
}

func (r *fakeVisitorRepo) FindByID(id string) (*user.Visitor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.visitors[id]
	if !ok {
		return nil, nil
	}
	copied := *v
	return &copied, nil
}

func (r *fakeVisitorRepo) Store(visitor *user.Visitor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *visitor
	r.visitors[visitor.ID] = &copied
	return nil
}

func (r *fakeVisitorRepo) Update(visitor *user.Visitor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.visitors[visitor.ID]; !ok {
		return errors.New("visitor not found")
	}
	copied := *visitor
	r.visitors[visitor.ID] = &copied
	return nil
}

func (r *fakeVisitorRepo) DeleteUnconvertedBefore(cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, v := range r.visitors {
		if !v.Converted && v.CreatedAt.Before(cutoff) {
			delete(r.visitors, id)
			deleted++
		}
	}
	return deleted, nil
}

type fakeLeadRepo struct {
	mu    sync.Mutex
	leads map[string]*user.Lead
}

func newFakeLeadRepo() *fakeLeadRepo {
	return &fakeLeadRepo{leads: make(map[string]*user.Lead)}
}

func (r *fakeLeadRepo) FindByID(id string) (*user.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok {
		return nil, nil
	}
	copied := *l
	return &copied, nil
}

func (r *fakeLeadRepo) FindByEmail(email string) (*user.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.leads {
		if l.Email == email {
			copied := *l
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeLeadRepo) Store(lead *user.Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *lead
	r.leads[lead.ID] = &copied
	return nil
}

// Update merges non-zero fields, matching the COALESCE behaviour of the
// SQL repository.
func (r *fakeLeadRepo) Update(lead *user.Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.leads[lead.ID]
	if !ok {
		return errors.New("lead not found")
	}
	mergeString := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	mergeString(&existing.FirstName, lead.FirstName)
	mergeString(&existing.LastName, lead.LastName)
	mergeString(&existing.Email, lead.Email)
	mergeString(&existing.Phone, lead.Phone)
	mergeString(&existing.GCLID, lead.GCLID)
	mergeString(&existing.MSCLKID, lead.MSCLKID)
	mergeString(&existing.FBCLID, lead.FBCLID)
	mergeString(&existing.FBP, lead.FBP)
	mergeString(&existing.Status, lead.Status)
	mergeString(&existing.Disposition, lead.Disposition)
	mergeString(&existing.Stage, lead.Stage)
	mergeString(&existing.ContractDate, lead.ContractDate)
	mergeString(&existing.SignedTotal, lead.SignedTotal)
	if lead.DebtAmount != 0 {
		existing.DebtAmount = lead.DebtAmount
	}
	if lead.Revenue != 0 {
		existing.Revenue = lead.Revenue
	}
	for k, v := range lead.Extra {
		if existing.Extra == nil {
			existing.Extra = make(map[string]string)
		}
		existing.Extra[k] = v
	}
	existing.Changed = time.Now().UTC()
	return nil
}

func (r *fakeLeadRepo) SetCRMContactID(id, crmContactID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok {
		return errors.New("lead not found")
	}
	if l.CRMContactID == "" {
		l.CRMContactID = crmContactID
	}
	return nil
}

func (r *fakeLeadRepo) SetBlocked(id string, blocked bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok {
		return errors.New("lead not found")
	}
	l.Blocked = blocked
	return nil
}

type fakeBlocklistRepo struct {
	mu  sync.Mutex
	ips map[string]user.BlockedIP
}

func newFakeBlocklistRepo() *fakeBlocklistRepo {
	return &fakeBlocklistRepo{ips: make(map[string]user.BlockedIP)}
}

func (r *fakeBlocklistRepo) IsBlocked(ip string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ips[ip]
	return ok, nil
}

func (r *fakeBlocklistRepo) Add(ip, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ips[ip] = user.BlockedIP{IP: ip, Reason: reason, CreatedAt: time.Now().UTC()}
	return nil
}

func (r *fakeBlocklistRepo) Remove(ip string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ips, ip)
	return nil
}

func (r *fakeBlocklistRepo) List() ([]user.BlockedIP, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]user.BlockedIP, 0, len(r.ips))
	for _, entry := range r.ips {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out, nil
}

type fakeEventRepo struct {
	mu     sync.Mutex
	events []*attribution.ConversionEvent
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{}
}

func (r *fakeEventRepo) FindByID(id string) (*attribution.ConversionEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id {
			copied := *e
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeEventRepo) Store(event *attribution.ConversionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *event
	r.events = append(r.events, &copied)
	return nil
}

func (r *fakeEventRepo) UpdateOutcome(id string, status attribution.EventStatus, errorDetail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id {
			e.Status = status
			e.ErrorDetail = errorDetail
			if status == attribution.StatusSent {
				now := time.Now().UTC()
				e.SentAt = &now
			}
			return nil
		}
	}
	return errors.New("event not found")
}

func (r *fakeEventRepo) FindRecentDuplicate(visitorID, eventName, source string, cutoff time.Time) (*attribution.ConversionEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		e := r.events[i]
		if e.VisitorID == visitorID && e.EventName == eventName && e.Source == source && e.CreatedAt.After(cutoff) {
			copied := *e
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeEventRepo) List(limit, offset int) ([]*attribution.LedgerEntry, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := len(r.events)
	entries := make([]*attribution.LedgerEntry, 0, limit)
	for i := total - 1 - offset; i >= 0 && len(entries) < limit; i-- {
		entries = append(entries, &attribution.LedgerEntry{ConversionEvent: *r.events[i]})
	}
	return entries, total, nil
}

// all returns a snapshot of every stored row, oldest first.
func (r *fakeEventRepo) all() []*attribution.ConversionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*attribution.ConversionEvent, 0, len(r.events))
	for _, e := range r.events {
		copied := *e
		out = append(out, &copied)
	}
	return out
}

// bySource returns the stored rows carrying the given source tag.
func (r *fakeEventRepo) bySource(source string) []*attribution.ConversionEvent {
	var out []*attribution.ConversionEvent
	for _, e := range r.all() {
		if e.Source == source {
			out = append(out, e)
		}
	}
	return out
}

type fakeConfigRepo struct {
	mu      sync.Mutex
	configs map[string]*attribution.PostbackConfig
}

func newFakeConfigRepo() *fakeConfigRepo {
	return &fakeConfigRepo{configs: make(map[string]*attribution.PostbackConfig)}
}

func (r *fakeConfigRepo) FindByID(id string) (*attribution.PostbackConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.configs[id]
	if !ok {
		return nil, nil
	}
	copied := *cfg
	return &copied, nil
}

func (r *fakeConfigRepo) FindActiveByEventName(eventName string) (*attribution.PostbackConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cfg := range r.configs {
		if cfg.Active && cfg.EventName == eventName {
			copied := *cfg
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeConfigRepo) FindAll() ([]*attribution.PostbackConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*attribution.PostbackConfig, 0, len(r.configs))
	for _, cfg := range r.configs {
		copied := *cfg
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeConfigRepo) Store(config *attribution.PostbackConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *config
	r.configs[config.ID] = &copied
	return nil
}

func (r *fakeConfigRepo) Update(config *attribution.PostbackConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.configs[config.ID]; !ok {
		return errors.New("config not found")
	}
	copied := *config
	r.configs[config.ID] = &copied
	return nil
}

func (r *fakeConfigRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.configs, id)
	return nil
}

// fakeAdapter is a scriptable channel adapter. Eligibility and the send
// outcome are fixed per instance; Send invocations are counted.
type fakeAdapter struct {
	source     string
	eligible   bool
	skipReason string
	sendErr    error
	panicMsg   string

	mu        sync.Mutex
	sendCalls int
}

func (a *fakeAdapter) Source() string { return a.source }

func (a *fakeAdapter) Eligible(req *channels.SendRequest) (bool, string) {
	if a.eligible {
		return true, ""
	}
	return false, a.skipReason
}

func (a *fakeAdapter) Send(ctx context.Context, req *channels.SendRequest) error {
	a.mu.Lock()
	a.sendCalls++
	a.mu.Unlock()
	if a.panicMsg != "" {
		panic(a.panicMsg)
	}
	return a.sendErr
}

func (a *fakeAdapter) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sendCalls
}
