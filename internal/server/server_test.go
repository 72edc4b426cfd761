package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glassbox-ai/glassbox/internal/auth"
	"github.com/glassbox-ai/glassbox/internal/model"
	"github.com/glassbox-ai/glassbox/internal/pipeline"
	"github.com/glassbox-ai/glassbox/internal/recorder"
	"github.com/glassbox-ai/glassbox/internal/reducer"
	"github.com/glassbox-ai/glassbox/internal/server"
	"github.com/glassbox-ai/glassbox/internal/service/generation"
	"github.com/glassbox-ai/glassbox/internal/storage"
)

type stubEmbedder struct{ err error }

func (s stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, s.err
}

type stubRetriever struct {
	matches []model.SourceMatch
}

func (s stubRetriever) Search(context.Context, []float32, float64, int) ([]model.SourceMatch, error) {
	return s.matches, nil
}

func (s stubRetriever) Healthy(context.Context) error { return nil }

type stubGenerator struct{ fragments []string }

func (s stubGenerator) Stream(_ context.Context, _ []generation.Message, onDelta func(string) error) error {
	for _, f := range s.fragments {
		if err := onDelta(f); err != nil {
			return err
		}
	}
	return nil
}

type testEnv struct {
	srv   *httptest.Server
	store *storage.SQLiteStore
}

func newTestEnv(t *testing.T, cfg server.ServerConfig) *testEnv {
	t.Helper()

	logger := slog.Default()
	store, err := storage.NewSQLiteStore(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	if cfg.Pipeline == nil {
		cfg.Pipeline = pipeline.New(pipeline.Config{
			Embedder: stubEmbedder{},
			Retriever: stubRetriever{matches: []model.SourceMatch{
				{ID: "1", DocumentID: "doc-a", Content: "refund within 30 days", Similarity: 0.9},
				{ID: "2", DocumentID: "doc-b", Content: "store credit after", Similarity: 0.8},
			}},
			Generator: stubGenerator{fragments: []string{"Refunds ", "take ", "30 days."}},
			Tool:      &pipeline.RerankTool{Delay: time.Millisecond},
			Recorder:  recorder.New(store, logger),
			Logger:    logger,
		})
	}
	cfg.Store = store
	cfg.Logger = logger
	cfg.Version = "test"
	if cfg.MaxRequestBodyBytes == 0 {
		cfg.MaxRequestBodyBytes = 1 << 20
	}

	s := server.New(cfg)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{srv: ts, store: store}
}

func askJSON(t *testing.T, env *testEnv, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(env.srv.URL+"/v1/ask", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	return resp
}

func TestHandleAsk_StreamsTrace(t *testing.T) {
	env := newTestEnv(t, server.ServerConfig{})

	resp := askJSON(t, env, `{"question":"What is the refund policy?","topk":3,"threshold":0.5}`)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	// Feed the raw stream through the client-side reducer in small
	// chunks, the way a browser consumer would.
	dec := reducer.NewDecoder(slog.Default())
	buf := make([]byte, 7)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
	}
	dec.Close()

	state := dec.State()
	assert.Equal(t, "Refunds take 30 days.", state.Answer)
	require.Len(t, state.Sources, 2)
	assert.Equal(t, "doc-a", state.Sources[0].DocumentID)

	var keys []string
	for _, s := range state.Steps {
		keys = append(keys, s.Key)
		assert.Equal(t, model.StepDone, s.Status, s.Key)
	}
	assert.Equal(t, []string{"received", "embedding", "retrieving", "tool_invoking", "generating"}, keys)

	// Exactly one run was persisted with the streamed answer.
	runs, total, err := env.store.ListRuns(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.NotNil(t, runs[0].Answer)
	assert.Equal(t, "Refunds take 30 days.", *runs[0].Answer)
	assert.Equal(t, 2, runs[0].MatchedCount)
}

func TestHandleAsk_MissingQuestion(t *testing.T) {
	env := newTestEnv(t, server.ServerConfig{})

	resp := askJSON(t, env, `{"question":""}`)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var apiErr model.APIError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
	assert.Equal(t, model.ErrCodeInvalidInput, apiErr.Error.Code)
	assert.NotEmpty(t, apiErr.Meta.RequestID)

	// Rejected before pipeline start: no run record.
	_, total, err := env.store.ListRuns(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestHandleAsk_MalformedBody(t *testing.T) {
	env := newTestEnv(t, server.ServerConfig{})

	resp := askJSON(t, env, `{"question": `)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunEndpoints(t *testing.T) {
	env := newTestEnv(t, server.ServerConfig{})

	// Produce one run via the ask endpoint.
	resp := askJSON(t, env, `{"question":"q"}`)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	// List it.
	listResp, err := http.Get(env.srv.URL + "/v1/runs?page=1&page_size=10")
	require.NoError(t, err)
	defer listResp.Body.Close()
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var listBody struct {
		Data model.RunList `json:"data"`
	}
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&listBody))
	require.Equal(t, 1, listBody.Data.Total)
	runID := listBody.Data.Items[0].ID

	// Fetch it by ID.
	getResp, err := http.Get(fmt.Sprintf("%s/v1/runs/%s", env.srv.URL, runID))
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var getBody struct {
		Data model.RunRecord `json:"data"`
	}
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&getBody))
	assert.Equal(t, runID, getBody.Data.ID)
	assert.Equal(t, "q", getBody.Data.Question)
}

func TestGetRun_NotFoundAndInvalid(t *testing.T) {
	env := newTestEnv(t, server.ServerConfig{})

	resp, err := http.Get(env.srv.URL + "/v1/runs/not-a-uuid")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(env.srv.URL + "/v1/runs/5bb39a43-9f61-4c05-87c3-cd52cf2089fb")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, server.ServerConfig{Retriever: stubRetriever{}})

	resp, err := http.Get(env.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data model.HealthResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Data.Status)
	assert.Equal(t, "connected", body.Data.Store)
	assert.Equal(t, "connected", body.Data.Retriever)
}

func TestAuthFlow(t *testing.T) {
	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	hash, err := auth.HashAPIKey("sk-glassbox-test")
	require.NoError(t, err)

	env := newTestEnv(t, server.ServerConfig{JWTMgr: jwtMgr, APIKeyHash: hash})

	// Protected endpoint without a token.
	resp, err := http.Get(env.srv.URL + "/v1/runs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Wrong API key.
	resp, err = http.Post(env.srv.URL+"/auth/token", "application/json",
		bytes.NewBufferString(`{"api_key":"wrong"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Correct API key yields a token.
	resp, err = http.Post(env.srv.URL+"/auth/token", "application/json",
		bytes.NewBufferString(`{"api_key":"sk-glassbox-test"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tokenBody struct {
		Data model.AuthTokenResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tokenBody))
	require.NotEmpty(t, tokenBody.Data.Token)

	// The token unlocks protected endpoints.
	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/v1/runs", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tokenBody.Data.Token)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	// Health stays public.
	resp3, err := http.Get(env.srv.URL + "/health")
	require.NoError(t, err)
	resp3.Body.Close()
	assert.Equal(t, http.StatusOK, resp3.StatusCode)
}

func TestRequestIDPropagation(t *testing.T) {
	env := newTestEnv(t, server.ServerConfig{})

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-12345")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "req-12345", resp.Header.Get("X-Request-ID"))
}
