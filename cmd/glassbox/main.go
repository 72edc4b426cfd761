package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/glassbox-ai/glassbox/internal/auth"
	"github.com/glassbox-ai/glassbox/internal/config"
	"github.com/glassbox-ai/glassbox/internal/mcp"
	"github.com/glassbox-ai/glassbox/internal/pipeline"
	"github.com/glassbox-ai/glassbox/internal/recorder"
	"github.com/glassbox-ai/glassbox/internal/search"
	"github.com/glassbox-ai/glassbox/internal/server"
	"github.com/glassbox-ai/glassbox/internal/service/embedding"
	"github.com/glassbox-ai/glassbox/internal/service/generation"
	"github.com/glassbox-ai/glassbox/internal/storage"
	"github.com/glassbox-ai/glassbox/internal/telemetry"
	"github.com/glassbox-ai/glassbox/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("GLASSBOX_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("glassbox starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Open the run store. DATABASE_URL selects Postgres; otherwise runs
	// land in an embedded SQLite file.
	var store storage.RunStore
	var db *storage.DB
	if cfg.DatabaseURL != "" {
		db, err = storage.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		defer db.Close()

		// RunMigrations tracks applied files in schema_migrations and skips
		// duplicates, so errors here indicate real failures.
		if err := db.RunMigrations(ctx, migrations.FS); err != nil {
			slog.Warn("migrations failed", "error", err)
		}
		store = db
		logger.Info("run store: postgres")
	} else {
		sqlite, err := storage.NewSQLiteStore(cfg.SQLitePath, logger)
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		defer func() { _ = sqlite.Close() }()
		store = sqlite
		logger.Info("run store: sqlite", "path", cfg.SQLitePath)
	}

	embedder := newEmbeddingProvider(cfg, logger)

	// Pick the retrieval backend: Qdrant when configured, else pgvector
	// over the chunks table. Config validation guarantees one is available.
	var retriever search.Retriever
	if cfg.QdrantURL != "" {
		qdrantIndex, err := search.NewQdrantIndex(search.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dims:       uint64(cfg.EmbeddingDimensions), //nolint:gosec // validated positive in config.Validate
		}, logger)
		if err != nil {
			return fmt.Errorf("qdrant: %w", err)
		}
		defer func() { _ = qdrantIndex.Close() }()

		if err := qdrantIndex.EnsureCollection(ctx); err != nil {
			return fmt.Errorf("qdrant ensure collection: %w", err)
		}
		retriever = qdrantIndex
		logger.Info("retriever: qdrant", "collection", cfg.QdrantCollection)
	} else {
		retriever = storage.NewChunkRetriever(db)
		logger.Info("retriever: pgvector")
	}

	generator, err := newGenerationProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("generation: %w", err)
	}

	rec := recorder.New(store, logger)

	pipe := pipeline.New(pipeline.Config{
		Embedder:  vectorEmbedder{provider: embedder},
		Retriever: retriever,
		Generator: generator,
		Tool:      &pipeline.RerankTool{Delay: cfg.ToolDelay},
		Recorder:  rec,
		Logger:    logger,
	})

	// Auth is opt-in: setting GLASSBOX_API_KEY enables the token endpoint
	// and bearer checks on the v1 routes.
	var jwtMgr *auth.JWTManager
	var apiKeyHash string
	if cfg.APIKey != "" {
		jwtMgr, err = auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		apiKeyHash, err = auth.HashAPIKey(cfg.APIKey)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		logger.Info("auth: enabled")
	} else {
		logger.Info("auth: disabled (no GLASSBOX_API_KEY)")
	}

	mcpSrv := mcp.New(pipe, store, logger)

	srv := server.New(server.ServerConfig{
		Store:               store,
		Pipeline:            pipe,
		Retriever:           retriever,
		JWTMgr:              jwtMgr,
		MCPServer:           mcpSrv.MCPServer(),
		APIKeyHash:          apiKeyHash,
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	// Start HTTP server in background.
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// Graceful shutdown: stop accepting new requests and drain in-flight
	// streams. Runs that finish during the drain still persist their
	// records because the recorder uses a detached context.
	slog.Info("glassbox shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	slog.Info("glassbox stopped")
	return nil
}

// vectorEmbedder adapts an embedding.Provider to the plain float32 slice
// the pipeline works with.
type vectorEmbedder struct {
	provider embedding.Provider
}

func (e vectorEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return vec.Slice(), nil
}

// newEmbeddingProvider creates an embedding provider based on configuration.
// Provider selection: "ollama", "openai", "noop", or "auto" (default).
// Auto mode tries Ollama if reachable, then OpenAI if key present, else noop.
// Ollama is preferred: embeddings stay on-premises with no external API costs.
func newEmbeddingProvider(cfg config.Config, logger *slog.Logger) embedding.Provider {
	dims := cfg.EmbeddingDimensions

	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when GLASSBOX_EMBEDDING_PROVIDER=openai")
			return embedding.NewNoopProvider(dims)
		}
		logger.Info("embedding provider: openai", "model", cfg.EmbeddingModel, "dimensions", dims)
		return embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)

	case "ollama":
		logger.Info("embedding provider: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaEmbedModel, "dimensions", dims)
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaEmbedModel, dims)

	case "noop":
		logger.Info("embedding provider: noop (retrieval quality degraded)")
		return embedding.NewNoopProvider(dims)

	case "auto":
		fallthrough
	default:
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("embedding provider: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.OllamaEmbedModel, "dimensions", dims)
			return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaEmbedModel, dims)
		}
		if cfg.OpenAIAPIKey != "" {
			logger.Info("embedding provider: openai (auto-detected)", "model", cfg.EmbeddingModel, "dimensions", dims)
			return embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)
		}
		logger.Warn("no embedding provider available, using noop (retrieval quality degraded)")
		return embedding.NewNoopProvider(dims)
	}
}

// newGenerationProvider creates an answer generator based on configuration.
// Unlike embeddings there is no noop fallback: a pipeline without a
// generator cannot answer anything, so a missing provider is fatal.
func newGenerationProvider(cfg config.Config, logger *slog.Logger) (generation.Provider, error) {
	switch cfg.GenerationProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY required when GLASSBOX_GENERATION_PROVIDER=openai")
		}
		logger.Info("generation provider: openai", "model", cfg.GenerationModel)
		return generation.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.GenerationModel, cfg.OpenAIBaseURL), nil

	case "ollama":
		logger.Info("generation provider: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaChatModel)
		return generation.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaChatModel), nil

	case "auto":
		fallthrough
	default:
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("generation provider: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.OllamaChatModel)
			return generation.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaChatModel), nil
		}
		if cfg.OpenAIAPIKey != "" {
			logger.Info("generation provider: openai (auto-detected)", "model", cfg.GenerationModel)
			return generation.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.GenerationModel, cfg.OpenAIBaseURL), nil
		}
		return nil, fmt.Errorf("no generation provider available: set OPENAI_API_KEY or run Ollama at %s", cfg.OllamaURL)
	}
}

// ollamaReachable checks if an Ollama server is responding.
func ollamaReachable(baseURL string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
