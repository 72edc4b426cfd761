// Package recorder persists completed run records on a best-effort basis.
//
// Persistence must never fail a run the client already received: the
// answer has streamed, so a storage outage only costs the audit record.
package recorder

import (
	"context"
	"log/slog"
	"time"

	"github.com/glassbox-ai/glassbox/internal/model"
	"github.com/glassbox-ai/glassbox/internal/storage"
)

// persistTimeout bounds the write so a hung store can't pin goroutines.
const persistTimeout = 5 * time.Second

// Recorder writes run records to a RunStore, swallowing failures.
type Recorder struct {
	store  storage.RunStore
	logger *slog.Logger
}

// New creates a Recorder backed by store.
func New(store storage.RunStore, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Persist writes the record. The write runs on a detached context so it
// still happens when the caller's request context is already cancelled
// (client disconnect mid-stream). Failures are logged, never returned.
func (r *Recorder) Persist(rec model.RunRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := r.store.InsertRun(ctx, rec); err != nil {
		r.logger.Error("recorder: persist run failed",
			"run_id", rec.ID,
			"error", err,
		)
		return
	}
	r.logger.Debug("recorder: run persisted", "run_id", rec.ID, "duration_ms", rec.DurationMs)
}
