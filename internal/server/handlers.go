package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/glassbox-ai/glassbox/internal/auth"
	"github.com/glassbox-ai/glassbox/internal/model"
	"github.com/glassbox-ai/glassbox/internal/pipeline"
	"github.com/glassbox-ai/glassbox/internal/search"
	"github.com/glassbox-ai/glassbox/internal/storage"
	"github.com/glassbox-ai/glassbox/internal/stream"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	store               storage.RunStore
	retriever           search.Retriever
	pipeline            *pipeline.Pipeline
	jwtMgr              *auth.JWTManager
	apiKeyHash          string
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): JWTMgr, Retriever.
type HandlersDeps struct {
	Store               storage.RunStore
	Retriever           search.Retriever
	Pipeline            *pipeline.Pipeline
	JWTMgr              *auth.JWTManager
	APIKeyHash          string
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		store:               d.Store,
		retriever:           d.Retriever,
		pipeline:            d.Pipeline,
		jwtMgr:              d.JWTMgr,
		apiKeyHash:          d.APIKeyHash,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// HandleAsk handles POST /v1/ask. Validation failures are plain JSON
// errors; once validation passes, the response switches to a newline-
// delimited JSON event stream and all further failures travel in-band.
func (h *Handlers) HandleAsk(w http.ResponseWriter, r *http.Request) {
	var req model.AskRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Disable the server's WriteTimeout for this long-lived stream.
	// Without this, slow generations are killed after WriteTimeout.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	rec := h.pipeline.Run(r.Context(), req, stream.NewWriter(w))
	h.logger.Info("ask completed",
		"run_id", rec.ID,
		"matched_count", rec.MatchedCount,
		"duration_ms", rec.DurationMs,
		"request_id", RequestIDFromContext(r.Context()),
	)
}

// HandleListRuns handles GET /v1/runs with page/page_size pagination.
func (h *Handlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := queryInt(r, "page_size", 20)
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	runs, total, err := h.store.ListRuns(r.Context(), page, pageSize)
	if err != nil {
		h.logger.Error("list runs failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []model.RunRecord{}
	}

	writeJSON(w, r, http.StatusOK, model.RunList{
		Items:    runs,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

// HandleGetRun handles GET /v1/runs/{run_id}.
func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := model.ParseRunID(r.PathValue("run_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid run_id")
		return
	}

	rec, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrRunNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "run not found")
			return
		}
		h.logger.Error("get run failed", "run_id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to get run")
		return
	}

	writeJSON(w, r, http.StatusOK, rec)
}

// HandleAuthToken handles POST /auth/token: exchanges the configured
// API key for a short-lived JWT.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	if h.jwtMgr == nil {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "authentication is not enabled")
		return
	}

	var req model.AuthTokenRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	if h.apiKeyHash == "" {
		// Equalize timing with the real verification path.
		auth.DummyVerify()
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid API key")
		return
	}

	ok, err := auth.VerifyAPIKey(req.APIKey, h.apiKeyHash)
	if err != nil || !ok {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid API key")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken("api-client")
	if err != nil {
		h.logger.Error("issue token failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to issue token")
		return
	}

	writeJSON(w, r, http.StatusOK, model.AuthTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	httpStatus := http.StatusOK

	storeStatus := "connected"
	if err := h.store.Ping(r.Context()); err != nil {
		storeStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	retrieverStatus := ""
	if h.retriever != nil {
		retrieverStatus = "connected"
		if err := h.retriever.Healthy(r.Context()); err != nil {
			retrieverStatus = "disconnected"
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, r, httpStatus, model.HealthResponse{
		Status:    status,
		Version:   h.version,
		Store:     storeStatus,
		Retriever: retrieverStatus,
		Uptime:    int64(time.Since(h.startedAt).Seconds()),
	})
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
