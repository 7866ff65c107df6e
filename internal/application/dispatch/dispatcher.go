// Package dispatch runs the per-channel fan-out. Each adapter gets its
// own bounded queue and worker pool; every accepted task terminates in a
// ledger write, and one channel's failure never touches another's.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/LeadSpringHQ/leadspring-go/internal/domain/attribution"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/channels"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/pkg/config"
)

// Outcome is the terminal result of one channel send. Accepted reports
// whether the task entered a queue at all; when false no worker will
// ever settle the row and the caller must.
type Outcome struct {
	Source   string `json:"source"`
	Sent     bool   `json:"sent"`
	Accepted bool   `json:"-"`
	Error    string `json:"error,omitempty"`
}

type task struct {
	eventID string
	req     *channels.SendRequest
	done    chan Outcome // nil for detached tasks
}

// Dispatcher owns one queue and worker pool per channel adapter.
type Dispatcher struct {
	adapters map[string]channels.Adapter
	queues   map[string]chan *task
	events   attribution.EventRepository
	logger   *logging.ChanneledLogger
	workers  int
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewDispatcher wires the adapters into their queues.
func NewDispatcher(events attribution.EventRepository, logger *logging.ChanneledLogger, adapters ...channels.Adapter) *Dispatcher {
	d := &Dispatcher{
		adapters: make(map[string]channels.Adapter),
		queues:   make(map[string]chan *task),
		events:   events,
		logger:   logger,
		workers:  config.DispatchWorkersPerChannel,
	}
	for _, adapter := range adapters {
		d.adapters[adapter.Source()] = adapter
		d.queues[adapter.Source()] = make(chan *task, config.DispatchQueueDepth)
	}
	return d
}

// Adapter returns the adapter registered for a source tag, nil when none.
func (d *Dispatcher) Adapter(source string) channels.Adapter {
	return d.adapters[source]
}

// Start launches the worker pools. Workers drain their queues until the
// context is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for source, queue := range d.queues {
		adapter := d.adapters[source]
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.worker(ctx, adapter, queue)
		}
	}
	d.logger.Dispatch().Info("Dispatch workers started", "channels", len(d.adapters), "workersPerChannel", d.workers)
}

// Stop waits for in-flight sends to finish.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		for _, queue := range d.queues {
			close(queue)
		}
	})
	d.wg.Wait()
}

// Enqueue schedules a detached send for a ledger row that already exists.
// It returns false when the channel is unknown or its queue is full; the
// caller must then settle the row itself.
func (d *Dispatcher) Enqueue(source, eventID string, req *channels.SendRequest) bool {
	queue, ok := d.queues[source]
	if !ok {
		return false
	}
	select {
	case queue <- &task{eventID: eventID, req: req}:
		return true
	default:
		d.logger.Dispatch().Error("Dispatch queue full", "channel", source, "eventId", eventID)
		return false
	}
}

// EnqueueWait schedules a send and blocks until its outcome resolves,
// used by the lead auto-event so its response flags are never inferred
// eagerly. The context bounds the wait.
func (d *Dispatcher) EnqueueWait(ctx context.Context, source, eventID string, req *channels.SendRequest) Outcome {
	queue, ok := d.queues[source]
	if !ok {
		return Outcome{Source: source, Sent: false, Error: "unknown channel"}
	}

	t := &task{eventID: eventID, req: req, done: make(chan Outcome, 1)}
	select {
	case queue <- t:
	default:
		d.logger.Dispatch().Error("Dispatch queue full", "channel", source, "eventId", eventID)
		return Outcome{Source: source, Sent: false, Error: "dispatch queue full"}
	}

	select {
	case outcome := <-t.done:
		return outcome
	case <-ctx.Done():
		return Outcome{Source: source, Sent: false, Accepted: true, Error: "send still pending at response time"}
	}
}

func (d *Dispatcher) worker(ctx context.Context, adapter channels.Adapter, queue chan *task) {
	defer d.wg.Done()
	for {
		select {
		case t, ok := <-queue:
			if !ok {
				return
			}
			d.process(ctx, adapter, t)
		case <-ctx.Done():
			return
		}
	}
}

// process performs one send and always settles the ledger row.
func (d *Dispatcher) process(ctx context.Context, adapter channels.Adapter, t *task) {
	outcome := Outcome{Source: adapter.Source(), Accepted: true}

	defer func() {
		if r := recover(); r != nil {
			outcome.Error = fmt.Sprintf("adapter panic: %v", r)
			d.settle(t, outcome)
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, config.ProviderCallTimeout)
	err := adapter.Send(sendCtx, t.req)
	cancel()

	if err != nil {
		outcome.Error = err.Error()
	} else {
		outcome.Sent = true
	}
	d.settle(t, outcome)
}

func (d *Dispatcher) settle(t *task, outcome Outcome) {
	status := attribution.StatusSent
	if !outcome.Sent {
		status = attribution.StatusFailed
	}

	if err := d.events.UpdateOutcome(t.eventID, status, outcome.Error); err != nil {
		d.logger.Dispatch().Error("Failed to settle ledger row", "error", err.Error(), "eventId", t.eventID, "channel", outcome.Source)
	}

	if t.done != nil {
		t.done <- outcome
	}
}
