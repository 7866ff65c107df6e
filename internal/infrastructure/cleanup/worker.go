// Package cleanup provides the visitor retention background worker.
package cleanup

import (
	"context"
	"time"

	"github.com/LeadSpringHQ/leadspring-go/internal/domain/user"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/pkg/config"
)

// Worker deletes unconverted visitors past the retention window.
// Converted visitors are never touched; their leads reference them.
type Worker struct {
	visitors  user.VisitorRepository
	logger    *logging.ChanneledLogger
	interval  time.Duration
	retention time.Duration
}

// NewWorker creates a new retention cleanup worker from config.
func NewWorker(visitors user.VisitorRepository, logger *logging.ChanneledLogger) *Worker {
	return &Worker{
		visitors:  visitors,
		logger:    logger,
		interval:  config.RetentionCleanupInterval,
		retention: config.VisitorRetention,
	}
}

// Start begins the cleanup routine, using the configured interval.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.System().Info("Retention cleanup worker started",
		"interval", w.interval.String(), "retention", w.retention.String())

	for {
		select {
		case <-ctx.Done():
			w.logger.System().Info("Retention cleanup worker stopping")
			return
		case <-ticker.C:
			w.performCleanup()
		}
	}
}

func (w *Worker) performCleanup() {
	start := time.Now()
	cutoff := start.UTC().Add(-w.retention)

	deleted, err := w.visitors.DeleteUnconvertedBefore(cutoff)
	if err != nil {
		w.logger.System().Error("Retention cleanup failed", "error", err.Error())
		return
	}
	if deleted > 0 {
		w.logger.System().Info("Retention cleanup finished",
			"deleted", deleted, "cutoff", cutoff.Format(time.RFC3339), "duration", time.Since(start).String())
	}
}
