// Package storage provides persistence for run records and pgvector
// chunk retrieval.
//
// Two RunStore implementations exist: Postgres via pgxpool for
// deployments with a DATABASE_URL, and embedded SQLite for single-node
// setups without one. Both persist the same RunRecord shape.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/glassbox-ai/glassbox/internal/model"
)

// ErrRunNotFound is returned when no run exists for the requested ID.
var ErrRunNotFound = errors.New("storage: run not found")

// RunStore persists and retrieves completed run records.
// Implementations must be safe for concurrent use.
type RunStore interface {
	// InsertRun stores one completed run record.
	InsertRun(ctx context.Context, rec model.RunRecord) error

	// GetRun retrieves a run by ID. Returns ErrRunNotFound if absent.
	GetRun(ctx context.Context, id uuid.UUID) (model.RunRecord, error)

	// ListRuns returns runs ordered by created_at descending, plus the
	// total row count for pagination.
	ListRuns(ctx context.Context, page, pageSize int) ([]model.RunRecord, int, error)

	// Ping checks connectivity to the backing store.
	Ping(ctx context.Context) error
}
