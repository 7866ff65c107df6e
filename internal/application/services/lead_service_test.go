package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/LeadSpringHQ/leadspring-go/internal/domain/attribution"
	"github.com/LeadSpringHQ/leadspring-go/internal/domain/user"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/channels"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/email"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/performance"
)

type fakeNotifier struct {
	mu            sync.Mutex
	notifications []*email.LeadNotification
}

func (n *fakeNotifier) SendLeadNotification(notification *email.LeadNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notifications)
}

type leadFixture struct {
	svc       *LeadService
	visitors  *fakeVisitorRepo
	leads     *fakeLeadRepo
	blocklist *fakeBlocklistRepo
	events    *fakeEventRepo
	configs   *fakeConfigRepo
}

func newLeadFixture(t *testing.T, adapters ...*fakeAdapter) *leadFixture {
	t.Helper()
	f := &leadFixture{
		visitors:  newFakeVisitorRepo(),
		leads:     newFakeLeadRepo(),
		blocklist: newFakeBlocklistRepo(),
	}

	channelAdapters := make([]channels.Adapter, len(adapters))
	for i, a := range adapters {
		channelAdapters[i] = a
	}
	df := newDispatchFixture(t, channelAdapters...)
	f.events = df.events
	f.configs = df.configs

	f.svc = NewLeadService(f.visitors, f.leads, f.blocklist, df.svc, nil, logging.NewDiscard(), performance.NewTracker())
	return f
}

func leadRouting() *attribution.PostbackConfig {
	cfg := activeRouting(LeadEventName)
	cfg.ID = "cfg-lead"
	return cfg
}

func TestSubmitRequiresContact(t *testing.T) {
	f := newLeadFixture(t)

	_, err := f.svc.Submit(context.Background(), &LeadSubmission{FirstName: "Ann"})
	if err != ErrLeadValidation {
		t.Errorf("Submit error = %v, want ErrLeadValidation", err)
	}
	if len(f.events.all()) != 0 {
		t.Error("rejected submission produced ledger rows")
	}
}

func TestSubmitCreatesLeadAndConvertsVisitor(t *testing.T) {
	google := &fakeAdapter{source: attribution.SourceGoogle, eligible: true}
	f := newLeadFixture(t, google)
	f.configs.Store(leadRouting())
	f.visitors.Store(&user.Visitor{ID: "v1", GCLID: "first-touch", CreatedAt: time.Now()})

	result, err := f.svc.Submit(context.Background(), &LeadSubmission{
		VisitorID: "v1",
		FirstName: "Ann",
		Email:     "Ann@Example.COM",
		Phone:     "555-0100",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !result.Success || result.LeadID == "" {
		t.Fatalf("result = %+v", result)
	}

	lead, _ := f.leads.FindByID(result.LeadID)
	if lead == nil {
		t.Fatal("lead not stored")
	}
	if lead.Email != "ann@example.com" {
		t.Errorf("email = %q, want lowercased", lead.Email)
	}
	if lead.GCLID != "first-touch" {
		t.Errorf("lead gclid = %q, want visitor's first-touch id", lead.GCLID)
	}

	visitor, _ := f.visitors.FindByID("v1")
	if !visitor.Converted || visitor.LeadID == nil || *visitor.LeadID != result.LeadID {
		t.Errorf("visitor not converted: %+v", visitor)
	}

	rows := f.events.bySource(attribution.SourceGoogle)
	if len(rows) != 1 {
		t.Fatalf("auto-event rows = %d, want 1", len(rows))
	}
	if rows[0].EventName != LeadEventName {
		t.Errorf("auto-event name = %q, want %q", rows[0].EventName, LeadEventName)
	}
	if rows[0].Status != attribution.StatusSent {
		t.Errorf("auto-event status = %q, want sent after waited dispatch", rows[0].Status)
	}
	if !result.Channels[attribution.SourceGoogle] {
		t.Error("waited channel flag not set after successful send")
	}
}

func TestSubmitMintsVisitorWhenUntracked(t *testing.T) {
	f := newLeadFixture(t)
	f.configs.Store(leadRouting())

	result, err := f.svc.Submit(context.Background(), &LeadSubmission{
		Email: "cold@example.com",
		GCLID: "form-gclid",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.VisitorID == "" {
		t.Fatal("no visitor minted for untracked submission")
	}

	visitor, _ := f.visitors.FindByID(result.VisitorID)
	if visitor == nil || !visitor.Converted {
		t.Fatalf("minted visitor = %+v", visitor)
	}
	if visitor.GCLID != "form-gclid" {
		t.Errorf("minted visitor gclid = %q", visitor.GCLID)
	}
}

func TestSubmitPayloadClickIDsOverrideVisitor(t *testing.T) {
	f := newLeadFixture(t)
	f.configs.Store(leadRouting())
	f.visitors.Store(&user.Visitor{ID: "v1", GCLID: "stale", MSCLKID: "ms-stored", CreatedAt: time.Now()})

	result, err := f.svc.Submit(context.Background(), &LeadSubmission{
		VisitorID: "v1",
		Email:     "a@example.com",
		GCLID:     "fresh",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	lead, _ := f.leads.FindByID(result.LeadID)
	if lead.GCLID != "fresh" {
		t.Errorf("lead gclid = %q, want submission value", lead.GCLID)
	}
	if lead.MSCLKID != "ms-stored" {
		t.Errorf("lead msclkid = %q, want visitor value filling the gap", lead.MSCLKID)
	}
}

func TestSubmitRepeatMergesWithoutSecondAutoEvent(t *testing.T) {
	google := &fakeAdapter{source: attribution.SourceGoogle, eligible: true}
	f := newLeadFixture(t, google)
	f.configs.Store(leadRouting())
	f.visitors.Store(&user.Visitor{ID: "v1", GCLID: "g1", CreatedAt: time.Now()})

	first, err := f.svc.Submit(context.Background(), &LeadSubmission{VisitorID: "v1", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("first Submit failed: %v", err)
	}
	rowsAfterFirst := len(f.events.all())

	second, err := f.svc.Submit(context.Background(), &LeadSubmission{
		VisitorID: "v1",
		Email:     "a@example.com",
		Phone:     "555-0199",
	})
	if err != nil {
		t.Fatalf("second Submit failed: %v", err)
	}
	if second.LeadID != first.LeadID {
		t.Errorf("repeat submission minted a new lead: %q vs %q", second.LeadID, first.LeadID)
	}
	if second.Warning == "" {
		t.Error("repeat submission missing its warning")
	}
	if len(f.events.all()) != rowsAfterFirst {
		t.Error("repeat submission fired another auto-event")
	}

	lead, _ := f.leads.FindByID(first.LeadID)
	if lead.Phone != "555-0199" {
		t.Errorf("phone = %q, want merged value", lead.Phone)
	}
}

func TestSubmitBlockedIPSuppressesFanOutAndEmail(t *testing.T) {
	google := &fakeAdapter{source: attribution.SourceGoogle, eligible: true}
	notifier := &fakeNotifier{}
	f := newLeadFixture(t, google)
	f.svc.notifier = notifier
	f.configs.Store(leadRouting())
	f.blocklist.Add("203.0.113.50", "abuse")

	result, err := f.svc.Submit(context.Background(), &LeadSubmission{
		Email:    "bad@example.com",
		ClientIP: "203.0.113.50",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !result.Blocked {
		t.Fatal("blocked submission not flagged")
	}

	lead, _ := f.leads.FindByID(result.LeadID)
	if lead == nil || !lead.Blocked {
		t.Error("lead not persisted as blocked")
	}

	rows := f.events.all()
	if len(rows) != 1 || rows[0].Status != attribution.StatusBlocked {
		t.Fatalf("rows = %+v, want exactly one blocked row", rows)
	}
	if google.calls() != 0 {
		t.Errorf("adapter invoked %d times for blocked lead", google.calls())
	}
	if notifier.count() != 0 {
		t.Error("operator notified about a blocked lead")
	}
}

func TestSubmitSucceedsWhenNoRoutingExists(t *testing.T) {
	f := newLeadFixture(t)

	result, err := f.svc.Submit(context.Background(), &LeadSubmission{Email: "a@example.com"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want success despite missing routing", result)
	}

	rows := f.events.all()
	if len(rows) != 1 || rows[0].Status != attribution.StatusLogged {
		t.Fatalf("rows = %+v, want one logged auto-event row", rows)
	}
}
