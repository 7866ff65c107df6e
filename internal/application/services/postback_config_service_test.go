package services

import (
	"testing"

	"github.com/LeadSpringHQ/leadspring-go/internal/domain/attribution"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
)

func newConfigFixture() (*PostbackConfigService, *fakeConfigRepo) {
	repo := newFakeConfigRepo()
	return NewPostbackConfigService(repo, logging.NewDiscard()), repo
}

func TestCreateNormalizesEventName(t *testing.T) {
	svc, _ := newConfigFixture()

	created, err := svc.Create(&attribution.PostbackConfig{
		EventName: "  Contract_Signed  ",
		Active:    true,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.EventName != "contract_signed" {
		t.Errorf("event name = %q, want normalized", created.EventName)
	}
	if created.ID == "" {
		t.Error("no id minted")
	}
	if created.CreatedAt.IsZero() || created.Changed.IsZero() {
		t.Error("timestamps not stamped")
	}
}

func TestCreateRejectsEmptyEventName(t *testing.T) {
	svc, _ := newConfigFixture()

	if _, err := svc.Create(&attribution.PostbackConfig{EventName: "   "}); err != ErrEventNameRequired {
		t.Errorf("Create error = %v, want ErrEventNameRequired", err)
	}
}

func TestCreateRejectsDuplicateActiveName(t *testing.T) {
	svc, _ := newConfigFixture()

	if _, err := svc.Create(&attribution.PostbackConfig{EventName: "signed", Active: true}); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	if _, err := svc.Create(&attribution.PostbackConfig{EventName: "SIGNED", Active: true}); err != ErrEventNameTaken {
		t.Errorf("second Create error = %v, want ErrEventNameTaken", err)
	}
}

func TestCreateInactiveDoesNotReserveName(t *testing.T) {
	svc, _ := newConfigFixture()

	if _, err := svc.Create(&attribution.PostbackConfig{EventName: "signed", Active: false}); err != nil {
		t.Fatalf("inactive Create failed: %v", err)
	}
	if _, err := svc.Create(&attribution.PostbackConfig{EventName: "signed", Active: true}); err != nil {
		t.Errorf("active Create blocked by inactive config: %v", err)
	}
}

func TestUpdateKeepsOwnActiveName(t *testing.T) {
	svc, _ := newConfigFixture()

	created, err := svc.Create(&attribution.PostbackConfig{EventName: "signed", Active: true})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated, err := svc.Update(created.ID, &attribution.PostbackConfig{
		EventName:              "signed",
		GoogleConversionAction: "customers/1/conversionActions/2",
		Active:                 true,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.GoogleConversionAction != "customers/1/conversionActions/2" {
		t.Error("update dropped the new channel target")
	}
	if updated.CreatedAt != created.CreatedAt {
		t.Error("update rewrote the creation timestamp")
	}
}

func TestUpdateRejectsStealingActiveName(t *testing.T) {
	svc, _ := newConfigFixture()

	if _, err := svc.Create(&attribution.PostbackConfig{EventName: "signed", Active: true}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	other, err := svc.Create(&attribution.PostbackConfig{EventName: "other", Active: true})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := svc.Update(other.ID, &attribution.PostbackConfig{EventName: "signed", Active: true}); err != ErrEventNameTaken {
		t.Errorf("Update error = %v, want ErrEventNameTaken", err)
	}
}

func TestUpdateUnknownID(t *testing.T) {
	svc, _ := newConfigFixture()

	if _, err := svc.Update("missing", &attribution.PostbackConfig{EventName: "signed"}); err != ErrConfigNotFound {
		t.Errorf("Update error = %v, want ErrConfigNotFound", err)
	}
}

func TestDeleteUnknownID(t *testing.T) {
	svc, _ := newConfigFixture()

	if err := svc.Delete("missing"); err != ErrConfigNotFound {
		t.Errorf("Delete error = %v, want ErrConfigNotFound", err)
	}
}
