package storage

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glassbox-ai/glassbox/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRecord(question string, createdAt time.Time) model.RunRecord {
	answer := "an answer"
	topK := 5
	threshold := 0.4
	return model.RunRecord{
		ID:           uuid.New(),
		Question:     question,
		Answer:       &answer,
		TopK:         &topK,
		Threshold:    &threshold,
		MatchedCount: 2,
		DurationMs:   128,
		Steps: []model.Step{
			{Key: "received", Title: "Received question", Status: model.StepDone},
			{Key: "embedding", Title: "Embedding question", Status: model.StepDone},
		},
		Sources: []model.SourceMatch{
			{ID: "1", DocumentID: "doc-a", Content: "chunk one", Similarity: 0.91},
			{ID: "2", DocumentID: "doc-b", Content: "chunk two", Similarity: 0.77},
		},
		CreatedAt: createdAt,
	}
}

func TestSQLiteStore_InsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("how do I rotate keys", time.Now().UTC())
	require.NoError(t, s.InsertRun(ctx, rec))

	got, err := s.GetRun(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Question, got.Question)
	require.NotNil(t, got.Answer)
	assert.Equal(t, *rec.Answer, *got.Answer)
	assert.Equal(t, rec.MatchedCount, got.MatchedCount)
	assert.Equal(t, rec.Steps, got.Steps)
	assert.Equal(t, rec.Sources, got.Sources)
	assert.WithinDuration(t, rec.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRun(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestSQLiteStore_NilOptionals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// A run that failed before generating: no answer, no explicit params.
	rec := model.RunRecord{
		ID:        uuid.New(),
		Question:  "q",
		Steps:     []model.Step{{Key: "received", Title: "Received question", Status: model.StepError, Detail: "boom"}},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.InsertRun(ctx, rec))

	got, err := s.GetRun(ctx, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Answer)
	assert.Nil(t, got.TopK)
	assert.Nil(t, got.Threshold)
	assert.Empty(t, got.Sources)
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		rec := testRecord("q", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.InsertRun(ctx, rec))
	}

	runs, total, err := s.ListRuns(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, runs, 2)
	// Newest first.
	assert.True(t, runs[0].CreatedAt.After(runs[1].CreatedAt))

	runs, total, err = s.ListRuns(ctx, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, runs, 1)

	// Out-of-range page is empty, not an error.
	runs, _, err = s.ListRuns(ctx, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestSQLiteStore_ListRunsOrdersWithinSecond(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Sub-second spacing: a whole second, a short fraction, and a
	// longer fraction that the short one prefixes. Stored timestamps
	// must sort chronologically despite TEXT comparison.
	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	whole := testRecord("whole second", base)
	short := testRecord("half second", base.Add(500*time.Millisecond))
	long := testRecord("just after half", base.Add(520*time.Millisecond))
	for _, rec := range []model.RunRecord{long, whole, short} {
		require.NoError(t, s.InsertRun(ctx, rec))
	}

	runs, total, err := s.ListRuns(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, runs, 3)
	assert.Equal(t, long.ID, runs[0].ID)
	assert.Equal(t, short.ID, runs[1].ID)
	assert.Equal(t, whole.ID, runs[2].ID)
}
