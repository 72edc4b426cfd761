// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port        int
	ReadTimeout time.Duration
	// WriteTimeout applies to non-streaming responses; the answer stream
	// clears its own deadline per request.
	WriteTimeout time.Duration

	// Run store settings. DATABASE_URL selects Postgres; when empty the
	// service falls back to embedded SQLite at SQLitePath.
	DatabaseURL string
	SQLitePath  string

	// Qdrant settings. When QDRANT_URL is empty, retrieval falls back to
	// pgvector over DATABASE_URL.
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	// Embedding provider settings.
	EmbeddingProvider   string // "auto", "openai", "ollama", or "noop"
	OpenAIAPIKey        string
	EmbeddingModel      string
	EmbeddingDimensions int // Vector dimensions; must match the chosen model's output.
	OllamaURL           string
	OllamaEmbedModel    string

	// Generation provider settings.
	GenerationProvider string // "auto", "openai", or "ollama"
	GenerationModel    string
	OpenAIBaseURL      string // Override for OpenAI-compatible servers.
	OllamaChatModel    string

	// Tool stage settings.
	ToolDelay time.Duration

	// JWT settings. Auth is disabled when no key paths are set.
	JWTPrivateKeyPath string // Path to Ed25519 private key PEM file.
	JWTPublicKeyPath  string // Path to Ed25519 public key PEM file.
	JWTExpiration     time.Duration
	APIKey            string // Shared API key exchanged for tokens at /auth/token.

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64 // Maximum request body size in bytes.
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("GLASSBOX_PORT", 8080),
		ReadTimeout:         envDuration("GLASSBOX_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("GLASSBOX_WRITE_TIMEOUT", 30*time.Second),
		DatabaseURL:         envStr("DATABASE_URL", ""),
		SQLitePath:          envStr("GLASSBOX_SQLITE_PATH", "glassbox.db"),
		QdrantURL:           envStr("QDRANT_URL", ""),
		QdrantAPIKey:        envStr("QDRANT_API_KEY", ""),
		QdrantCollection:    envStr("QDRANT_COLLECTION", "chunks"),
		EmbeddingProvider:   envStr("GLASSBOX_EMBEDDING_PROVIDER", "auto"),
		OpenAIAPIKey:        envStr("OPENAI_API_KEY", ""),
		EmbeddingModel:      envStr("GLASSBOX_EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions: envInt("GLASSBOX_EMBEDDING_DIMENSIONS", 1536),
		OllamaURL:           envStr("OLLAMA_URL", "http://localhost:11434"),
		OllamaEmbedModel:    envStr("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		GenerationProvider:  envStr("GLASSBOX_GENERATION_PROVIDER", "auto"),
		GenerationModel:     envStr("GLASSBOX_GENERATION_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:       envStr("OPENAI_BASE_URL", ""),
		OllamaChatModel:     envStr("OLLAMA_CHAT_MODEL", "llama3.1"),
		ToolDelay:           envDuration("GLASSBOX_TOOL_DELAY", 300*time.Millisecond),
		JWTPrivateKeyPath:   envStr("GLASSBOX_JWT_PRIVATE_KEY", ""),
		JWTPublicKeyPath:    envStr("GLASSBOX_JWT_PUBLIC_KEY", ""),
		JWTExpiration:       envDuration("GLASSBOX_JWT_EXPIRATION", 24*time.Hour),
		APIKey:              envStr("GLASSBOX_API_KEY", ""),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "glassbox"),
		LogLevel:            envStr("GLASSBOX_LOG_LEVEL", "info"),
		MaxRequestBodyBytes: int64(envInt("GLASSBOX_MAX_REQUEST_BODY_BYTES", 1*1024*1024)), // 1 MB default
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c Config) Validate() error {
	if c.QdrantURL == "" && c.DatabaseURL == "" {
		return fmt.Errorf("config: retrieval requires QDRANT_URL or DATABASE_URL")
	}
	if c.DatabaseURL == "" && c.SQLitePath == "" {
		return fmt.Errorf("config: GLASSBOX_SQLITE_PATH is required when DATABASE_URL is unset")
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("config: GLASSBOX_EMBEDDING_DIMENSIONS must be positive")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: GLASSBOX_MAX_REQUEST_BODY_BYTES must be positive")
	}
	if (c.JWTPrivateKeyPath == "") != (c.JWTPublicKeyPath == "") {
		return fmt.Errorf("config: JWT key paths must be set together")
	}
	if c.JWTPrivateKeyPath != "" && c.APIKey == "" {
		return fmt.Errorf("config: GLASSBOX_API_KEY is required when JWT auth is enabled")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
