package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LeadSpringHQ/leadspring-go/internal/domain/attribution"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/channels"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/pkg/config"
)

type recordingEventRepo struct {
	mu       sync.Mutex
	outcomes map[string]attribution.EventStatus
	details  map[string]string
}

func newRecordingEventRepo() *recordingEventRepo {
	return &recordingEventRepo{
		outcomes: make(map[string]attribution.EventStatus),
		details:  make(map[string]string),
	}
}

func (r *recordingEventRepo) FindByID(id string) (*attribution.ConversionEvent, error) {
	return nil, nil
}

func (r *recordingEventRepo) Store(event *attribution.ConversionEvent) error { return nil }

func (r *recordingEventRepo) UpdateOutcome(id string, status attribution.EventStatus, errorDetail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[id] = status
	r.details[id] = errorDetail
	return nil
}

func (r *recordingEventRepo) FindRecentDuplicate(visitorID, eventName, source string, cutoff time.Time) (*attribution.ConversionEvent, error) {
	return nil, nil
}

func (r *recordingEventRepo) List(limit, offset int) ([]*attribution.LedgerEntry, int, error) {
	return nil, 0, nil
}

func (r *recordingEventRepo) outcome(id string) (attribution.EventStatus, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes[id], r.details[id]
}

type stubAdapter struct {
	source   string
	sendErr  error
	panicMsg string
	block    chan struct{} // when set, Send waits for it to close
}

func (a *stubAdapter) Source() string { return a.source }

func (a *stubAdapter) Eligible(req *channels.SendRequest) (bool, string) { return true, "" }

func (a *stubAdapter) Send(ctx context.Context, req *channels.SendRequest) error {
	if a.block != nil {
		<-a.block
	}
	if a.panicMsg != "" {
		panic(a.panicMsg)
	}
	return a.sendErr
}

func TestEnqueueWaitSettlesSent(t *testing.T) {
	repo := newRecordingEventRepo()
	adapter := &stubAdapter{source: attribution.SourceGoogle}
	d := NewDispatcher(repo, logging.NewDiscard(), adapter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	outcome := d.EnqueueWait(context.Background(), attribution.SourceGoogle, "evt-1", &channels.SendRequest{})
	if !outcome.Sent || !outcome.Accepted || outcome.Error != "" {
		t.Fatalf("outcome = %+v, want accepted and sent", outcome)
	}

	status, detail := repo.outcome("evt-1")
	if status != attribution.StatusSent || detail != "" {
		t.Errorf("ledger outcome = %q/%q, want sent", status, detail)
	}
}

func TestEnqueueWaitSettlesFailed(t *testing.T) {
	repo := newRecordingEventRepo()
	adapter := &stubAdapter{source: attribution.SourceGoogle, sendErr: errors.New("rejected by provider")}
	d := NewDispatcher(repo, logging.NewDiscard(), adapter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	outcome := d.EnqueueWait(context.Background(), attribution.SourceGoogle, "evt-1", &channels.SendRequest{})
	if outcome.Sent || outcome.Error != "rejected by provider" {
		t.Fatalf("outcome = %+v, want failure", outcome)
	}

	status, detail := repo.outcome("evt-1")
	if status != attribution.StatusFailed || detail != "rejected by provider" {
		t.Errorf("ledger outcome = %q/%q, want failed", status, detail)
	}
}

func TestAdapterPanicSettlesRow(t *testing.T) {
	repo := newRecordingEventRepo()
	adapter := &stubAdapter{source: attribution.SourceGoogle, panicMsg: "nil deref in payload builder"}
	d := NewDispatcher(repo, logging.NewDiscard(), adapter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	outcome := d.EnqueueWait(context.Background(), attribution.SourceGoogle, "evt-1", &channels.SendRequest{})
	if outcome.Sent {
		t.Fatal("panicking send reported sent")
	}

	status, detail := repo.outcome("evt-1")
	if status != attribution.StatusFailed {
		t.Errorf("status = %q, want failed", status)
	}
	if detail == "" {
		t.Error("panic left no error detail")
	}

	// The worker must survive the panic and settle the next task too.
	outcome = d.EnqueueWait(context.Background(), attribution.SourceGoogle, "evt-2", &channels.SendRequest{})
	if outcome.Sent {
		t.Fatal("second panicking send reported sent")
	}
	if status, _ := repo.outcome("evt-2"); status != attribution.StatusFailed {
		t.Errorf("second row status = %q, want failed", status)
	}
	d.Stop()
}

func TestEnqueueUnknownChannel(t *testing.T) {
	repo := newRecordingEventRepo()
	d := NewDispatcher(repo, logging.NewDiscard(), &stubAdapter{source: attribution.SourceGoogle})

	if d.Enqueue(attribution.SourceMeta, "evt-1", &channels.SendRequest{}) {
		t.Error("Enqueue accepted an unregistered channel")
	}
	outcome := d.EnqueueWait(context.Background(), attribution.SourceMeta, "evt-1", &channels.SendRequest{})
	if outcome.Sent || outcome.Accepted || outcome.Error != "unknown channel" {
		t.Errorf("outcome = %+v, want unknown channel", outcome)
	}
}

func TestEnqueueQueueFull(t *testing.T) {
	origDepth := config.DispatchQueueDepth
	config.DispatchQueueDepth = 1
	defer func() { config.DispatchQueueDepth = origDepth }()

	repo := newRecordingEventRepo()
	blocker := make(chan struct{})
	adapter := &stubAdapter{source: attribution.SourceGoogle, block: blocker}
	d := NewDispatcher(repo, logging.NewDiscard(), adapter)
	// Not started: the single-slot queue fills immediately.

	if !d.Enqueue(attribution.SourceGoogle, "evt-1", &channels.SendRequest{}) {
		t.Fatal("first Enqueue rejected with an empty queue")
	}
	if d.Enqueue(attribution.SourceGoogle, "evt-2", &channels.SendRequest{}) {
		t.Error("second Enqueue accepted beyond queue depth")
	}

	outcome := d.EnqueueWait(context.Background(), attribution.SourceGoogle, "evt-3", &channels.SendRequest{})
	if outcome.Sent || outcome.Accepted || outcome.Error != "dispatch queue full" {
		t.Errorf("outcome = %+v, want queue full and not accepted", outcome)
	}

	close(blocker)
}

func TestStopDrainsQueuedTasks(t *testing.T) {
	repo := newRecordingEventRepo()
	adapter := &stubAdapter{source: attribution.SourceGoogle}
	d := NewDispatcher(repo, logging.NewDiscard(), adapter)

	for i, id := range []string{"evt-1", "evt-2", "evt-3"} {
		if !d.Enqueue(attribution.SourceGoogle, id, &channels.SendRequest{}) {
			t.Fatalf("Enqueue %d rejected", i)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	d.Stop()

	for _, id := range []string{"evt-1", "evt-2", "evt-3"} {
		if status, _ := repo.outcome(id); status != attribution.StatusSent {
			t.Errorf("row %s status = %q, want sent after drain", id, status)
		}
	}
}

func TestEnqueueWaitContextBound(t *testing.T) {
	repo := newRecordingEventRepo()
	blocker := make(chan struct{})
	adapter := &stubAdapter{source: attribution.SourceGoogle, block: blocker}
	d := NewDispatcher(repo, logging.NewDiscard(), adapter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer waitCancel()
	outcome := d.EnqueueWait(waitCtx, attribution.SourceGoogle, "evt-1", &channels.SendRequest{})
	if outcome.Sent {
		t.Fatal("timed-out wait reported sent")
	}
	if outcome.Error != "send still pending at response time" {
		t.Errorf("outcome error = %q", outcome.Error)
	}
	if !outcome.Accepted {
		t.Error("timed-out wait reported the task as never queued")
	}

	// Release the send; the row must still settle through the ledger.
	close(blocker)
	d.Stop()
	if status, _ := repo.outcome("evt-1"); status != attribution.StatusSent {
		t.Errorf("row status = %q, want sent after the late send finished", status)
	}
}
