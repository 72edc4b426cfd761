package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glassbox-ai/glassbox/internal/model"
	"github.com/glassbox-ai/glassbox/internal/pipeline"
	"github.com/glassbox-ai/glassbox/internal/recorder"
	"github.com/glassbox-ai/glassbox/internal/service/generation"
	"github.com/glassbox-ai/glassbox/internal/storage"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.1}, nil
}

type stubRetriever struct{ matches []model.SourceMatch }

func (s stubRetriever) Search(context.Context, []float32, float64, int) ([]model.SourceMatch, error) {
	return s.matches, nil
}

type stubGenerator struct{}

func (stubGenerator) Stream(_ context.Context, _ []generation.Message, onDelta func(string) error) error {
	return onDelta("the answer")
}

func newTestServer(t *testing.T) (*Server, *storage.SQLiteStore) {
	t.Helper()
	logger := slog.Default()
	store, err := storage.NewSQLiteStore(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	p := pipeline.New(pipeline.Config{
		Embedder: stubEmbedder{},
		Retriever: stubRetriever{matches: []model.SourceMatch{
			{ID: "1", DocumentID: "doc", Content: "text", Similarity: 0.9},
		}},
		Generator: stubGenerator{},
		Recorder:  recorder.New(store, logger),
		Logger:    logger,
	})
	return New(p, store, logger), store
}

func callToolRequest(args map[string]any) mcplib.CallToolRequest {
	req := mcplib.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestHandleAsk(t *testing.T) {
	s, store := newTestServer(t)

	res, err := s.handleAsk(context.Background(), callToolRequest(map[string]any{
		"question": "what is the answer",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	text := res.Content[0].(mcplib.TextContent).Text
	var payload struct {
		RunID        string              `json:"run_id"`
		Answer       string              `json:"answer"`
		MatchedCount int                 `json:"matched_count"`
		Sources      []model.SourceMatch `json:"sources"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &payload))
	assert.Equal(t, "the answer", payload.Answer)
	assert.Equal(t, 1, payload.MatchedCount)

	// The run is persisted and retrievable through the other tool.
	id, err := model.ParseRunID(payload.RunID)
	require.NoError(t, err)
	rec, err := store.GetRun(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, rec.Answer)
	assert.Equal(t, "the answer", *rec.Answer)

	getRes, err := s.handleGetRun(context.Background(), callToolRequest(map[string]any{
		"run_id": payload.RunID,
	}))
	require.NoError(t, err)
	assert.False(t, getRes.IsError)
}

func TestHandleAsk_MissingQuestion(t *testing.T) {
	s, _ := newTestServer(t)

	res, err := s.handleAsk(context.Background(), callToolRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleGetRun_InvalidID(t *testing.T) {
	s, _ := newTestServer(t)

	res, err := s.handleGetRun(context.Background(), callToolRequest(map[string]any{
		"run_id": "nope",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
