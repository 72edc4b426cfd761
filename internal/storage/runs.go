package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/glassbox-ai/glassbox/internal/model"
)

// InsertRun stores one completed run record. Steps and sources are
// stored as JSONB so the trace shape can evolve without migrations.
func (db *DB) InsertRun(ctx context.Context, rec model.RunRecord) error {
	steps, err := json.Marshal(rec.Steps)
	if err != nil {
		return fmt.Errorf("storage: marshal steps: %w", err)
	}
	sources, err := json.Marshal(rec.Sources)
	if err != nil {
		return fmt.Errorf("storage: marshal sources: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO runs (id, question, answer, top_k, threshold, matched_count, duration_ms, steps, sources, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.Question, rec.Answer, rec.TopK, rec.Threshold,
		rec.MatchedCount, rec.DurationMs, steps, sources, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (model.RunRecord, error) {
	var (
		rec     model.RunRecord
		steps   []byte
		sources []byte
	)
	err := db.pool.QueryRow(ctx,
		`SELECT id, question, answer, top_k, threshold, matched_count, duration_ms, steps, sources, created_at
		 FROM runs WHERE id = $1`, id,
	).Scan(
		&rec.ID, &rec.Question, &rec.Answer, &rec.TopK, &rec.Threshold,
		&rec.MatchedCount, &rec.DurationMs, &steps, &sources, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RunRecord{}, ErrRunNotFound
		}
		return model.RunRecord{}, fmt.Errorf("storage: get run: %w", err)
	}

	if err := unmarshalTrace(steps, sources, &rec); err != nil {
		return model.RunRecord{}, err
	}
	return rec, nil
}

// ListRuns returns runs ordered by created_at DESC with the total count.
func (db *DB) ListRuns(ctx context.Context, page, pageSize int) ([]model.RunRecord, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	var total int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count runs: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, question, answer, top_k, threshold, matched_count, duration_ms, steps, sources, created_at
		 FROM runs ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`, pageSize, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		var (
			rec     model.RunRecord
			steps   []byte
			sources []byte
		)
		if err := rows.Scan(
			&rec.ID, &rec.Question, &rec.Answer, &rec.TopK, &rec.Threshold,
			&rec.MatchedCount, &rec.DurationMs, &steps, &sources, &rec.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("storage: scan run: %w", err)
		}
		if err := unmarshalTrace(steps, sources, &rec); err != nil {
			return nil, 0, err
		}
		runs = append(runs, rec)
	}
	return runs, total, rows.Err()
}

func unmarshalTrace(steps, sources []byte, rec *model.RunRecord) error {
	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &rec.Steps); err != nil {
			return fmt.Errorf("storage: unmarshal steps: %w", err)
		}
	}
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &rec.Sources); err != nil {
			return fmt.Errorf("storage: unmarshal sources: %w", err)
		}
	}
	return nil
}
