package services

import (
	"testing"
	"time"

	"github.com/LeadSpringHQ/leadspring-go/internal/domain/user"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/performance"
)

func newIdentityFixture() (*IdentityService, *fakeVisitorRepo, *fakeLeadRepo, *fakeBlocklistRepo) {
	visitors := newFakeVisitorRepo()
	leads := newFakeLeadRepo()
	blocklist := newFakeBlocklistRepo()
	svc := NewIdentityService(visitors, leads, blocklist, logging.NewDiscard(), performance.NewTracker())
	return svc, visitors, leads, blocklist
}

func TestResolveUnknownKey(t *testing.T) {
	svc, _, _, _ := newIdentityFixture()

	res, err := svc.Resolve("no-such-visitor", ClickIDs{GCLID: "g-1"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Visitor != nil || res.Lead != nil {
		t.Error("unknown key resolved to an identity")
	}
	if res.ClickIDs.GCLID != "g-1" {
		t.Errorf("event click id dropped: %q", res.ClickIDs.GCLID)
	}
}

func TestResolveVisitorWithoutLead(t *testing.T) {
	svc, visitors, _, _ := newIdentityFixture()
	visitors.Store(&user.Visitor{ID: "v1", GCLID: "stored-gclid", FBP: "stored-fbp", CreatedAt: time.Now()})

	res, err := svc.Resolve("v1", ClickIDs{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Visitor == nil || res.Visitor.ID != "v1" {
		t.Fatal("visitor not resolved")
	}
	if res.Lead != nil {
		t.Error("unconverted visitor resolved to a lead")
	}
	if res.ClickIDs.GCLID != "stored-gclid" || res.ClickIDs.FBP != "stored-fbp" {
		t.Errorf("visitor click ids not adopted: %+v", res.ClickIDs)
	}
}

func TestResolveEventClickIDsTakePrecedence(t *testing.T) {
	svc, visitors, _, _ := newIdentityFixture()
	visitors.Store(&user.Visitor{ID: "v1", GCLID: "first-touch", MSCLKID: "ms-stored", CreatedAt: time.Now()})

	res, err := svc.Resolve("v1", ClickIDs{GCLID: "event-gclid"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.ClickIDs.GCLID != "event-gclid" {
		t.Errorf("GCLID = %q, want event value to win", res.ClickIDs.GCLID)
	}
	if res.ClickIDs.MSCLKID != "ms-stored" {
		t.Errorf("MSCLKID = %q, want stored value to fill the gap", res.ClickIDs.MSCLKID)
	}
}

func TestResolveConvertedVisitorLoadsLead(t *testing.T) {
	svc, visitors, leads, _ := newIdentityFixture()
	leads.Store(&user.Lead{ID: "l1", VisitorID: "v1", Email: "a@example.com"})
	leadID := "l1"
	visitors.Store(&user.Visitor{ID: "v1", Converted: true, LeadID: &leadID, CreatedAt: time.Now()})

	res, err := svc.Resolve("v1", ClickIDs{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Lead == nil || res.Lead.ID != "l1" {
		t.Fatal("converted visitor's lead not resolved")
	}
	if res.Blocked {
		t.Error("lead blocked without a blocklist entry")
	}
}

func TestResolveBlocklistedIPMarksLead(t *testing.T) {
	svc, visitors, leads, blocklist := newIdentityFixture()
	leads.Store(&user.Lead{ID: "l1", VisitorID: "v1"})
	leadID := "l1"
	visitors.Store(&user.Visitor{ID: "v1", IP: "203.0.113.9", Converted: true, LeadID: &leadID, CreatedAt: time.Now()})
	blocklist.Add("203.0.113.9", "fraud")

	res, err := svc.Resolve("v1", ClickIDs{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !res.Blocked {
		t.Fatal("blocklisted visitor not flagged")
	}

	stored, _ := leads.FindByID("l1")
	if !stored.Blocked {
		t.Error("blocked flag not persisted on the lead")
	}
}

func TestResolveAlreadyBlockedLeadSkipsLookup(t *testing.T) {
	svc, visitors, leads, _ := newIdentityFixture()
	leads.Store(&user.Lead{ID: "l1", VisitorID: "v1", Blocked: true})
	leadID := "l1"
	visitors.Store(&user.Visitor{ID: "v1", IP: "198.51.100.7", Converted: true, LeadID: &leadID, CreatedAt: time.Now()})

	res, err := svc.Resolve("v1", ClickIDs{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !res.Blocked {
		t.Error("previously blocked lead not reported as blocked")
	}
}
