package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/glassbox-ai/glassbox/internal/model"
)

// SQLiteStore implements RunStore on an embedded SQLite database.
// Used when no DATABASE_URL is configured; runs survive restarts
// without requiring a Postgres instance.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	question      TEXT NOT NULL,
	answer        TEXT,
	top_k         INTEGER,
	threshold     REAL,
	matched_count INTEGER NOT NULL DEFAULT 0,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	steps         TEXT NOT NULL DEFAULT '[]',
	sources       TEXT NOT NULL DEFAULT '[]',
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at DESC);
`

// sqliteTimeLayout is a fixed-width rendering of created_at. SQLite
// orders TEXT lexicographically, and RFC3339Nano trims trailing
// fractional zeros, which misorders timestamps within the same second
// ("...00Z" sorts after "...00.5Z"). Padding the fraction to nine
// digits keeps byte order equal to chronological order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// NewSQLiteStore opens (and creates, if needed) a SQLite database at
// path. ":memory:" gives an ephemeral store for tests.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite %q: %w", path, err)
	}
	// The sqlite driver serializes access per connection; keep one so
	// concurrent writers queue instead of hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: init sqlite schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// InsertRun stores one completed run record.
func (s *SQLiteStore) InsertRun(ctx context.Context, rec model.RunRecord) error {
	steps, err := json.Marshal(rec.Steps)
	if err != nil {
		return fmt.Errorf("storage: marshal steps: %w", err)
	}
	sources, err := json.Marshal(rec.Sources)
	if err != nil {
		return fmt.Errorf("storage: marshal sources: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, question, answer, top_k, threshold, matched_count, duration_ms, steps, sources, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.Question, rec.Answer, rec.TopK, rec.Threshold,
		rec.MatchedCount, rec.DurationMs, string(steps), string(sources),
		rec.CreatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("storage: insert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id uuid.UUID) (model.RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, question, answer, top_k, threshold, matched_count, duration_ms, steps, sources, created_at
		 FROM runs WHERE id = ?`, id.String(),
	)
	rec, err := scanSQLiteRun(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RunRecord{}, ErrRunNotFound
		}
		return model.RunRecord{}, fmt.Errorf("storage: get run: %w", err)
	}
	return rec, nil
}

// ListRuns returns runs ordered by created_at DESC with the total count.
func (s *SQLiteStore) ListRuns(ctx context.Context, page, pageSize int) ([]model.RunRecord, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count runs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question, answer, top_k, threshold, matched_count, duration_ms, steps, sources, created_at
		 FROM runs ORDER BY created_at DESC
		 LIMIT ? OFFSET ?`, pageSize, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		rec, err := scanSQLiteRun(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("storage: scan run: %w", err)
		}
		runs = append(runs, rec)
	}
	return runs, total, rows.Err()
}

// Ping checks connectivity to the database file.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanSQLiteRun(scan func(dest ...any) error) (model.RunRecord, error) {
	var (
		rec       model.RunRecord
		idStr     string
		steps     string
		sources   string
		createdAt string
	)
	if err := scan(
		&idStr, &rec.Question, &rec.Answer, &rec.TopK, &rec.Threshold,
		&rec.MatchedCount, &rec.DurationMs, &steps, &sources, &createdAt,
	); err != nil {
		return model.RunRecord{}, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return model.RunRecord{}, fmt.Errorf("invalid run id %q: %w", idStr, err)
	}
	rec.ID = id

	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return model.RunRecord{}, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	if err := json.Unmarshal([]byte(steps), &rec.Steps); err != nil {
		return model.RunRecord{}, fmt.Errorf("unmarshal steps: %w", err)
	}
	if err := json.Unmarshal([]byte(sources), &rec.Sources); err != nil {
		return model.RunRecord{}, fmt.Errorf("unmarshal sources: %w", err)
	}
	return rec, nil
}
