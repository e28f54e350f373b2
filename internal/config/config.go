package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Addr     string
	LogLevel string

	// Auth
	AuthToken string

	// Storage
	DataDir string
	DBPath  string

	// Worker pool
	Workers      int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Chunking defaults
	MinChunkChars     int
	MaxChunkChars     int
	ChunkOverlapChars int

	// Embedding
	EmbedProvider    string
	EmbedBaseURL     string
	EmbedModel       string
	EmbedAPIKey      string
	EmbedDimensions  int
	EmbedBatch       int
	EmbedConcurrency int

	// Answering LLM
	LLMProvider string
	LLMBaseURL  string
	LLMModel    string
	LLMAPIKey   string

	// Query
	QueryTopK        int
	MaxContextTokens int

	// Job state
	JobTTL time.Duration

	// PDF
	PDFFallbackPdftotext bool
}

func Load() Config {
	cfg := Config{
		Addr:     envOr("ADDR", ":8090"),
		LogLevel: envOr("LOG_LEVEL", "info"),

		AuthToken: os.Getenv("AUTH_TOKEN"),

		DataDir: envOr("DATA_DIR", "data"),
		DBPath:  os.Getenv("DB_PATH"),

		Workers:      envInt("WORKERS", 4),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		MinChunkChars:     envInt("MIN_CHUNK_CHARS", 200),
		MaxChunkChars:     envInt("MAX_CHUNK_CHARS", 800),
		ChunkOverlapChars: envInt("CHUNK_OVERLAP_CHARS", 150),

		EmbedProvider:    envOr("EMBED_PROVIDER", "ollama"),
		EmbedBaseURL:     envOr("EMBED_BASE_URL", "http://localhost:11434"),
		EmbedModel:       envOr("EMBED_MODEL", "bge-m3"),
		EmbedAPIKey:      os.Getenv("EMBED_API_KEY"),
		EmbedDimensions:  envInt("EMBED_DIMENSIONS", 1024),
		EmbedBatch:       envInt("EMBED_BATCH", 16),
		EmbedConcurrency: envInt("EMBED_CONCURRENCY", 4),

		LLMProvider: envOr("LLM_PROVIDER", "ollama"),
		LLMBaseURL:  envOr("LLM_BASE_URL", "http://localhost:11434"),
		LLMModel:    envOr("LLM_MODEL", "exaone3.5:7.8b"),
		LLMAPIKey:   os.Getenv("LLM_API_KEY"),

		QueryTopK:        envInt("QUERY_TOP_K", 5),
		MaxContextTokens: envInt("MAX_CONTEXT_TOKENS", 3000),

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "reggest.db")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.EmbedDimensions <= 0 {
		cfg.EmbedDimensions = 1024
	}
	if cfg.EmbedBatch <= 0 {
		cfg.EmbedBatch = 16
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = 4
	}
	if cfg.QueryTopK <= 0 {
		cfg.QueryTopK = 5
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = 3000
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.AuthToken == "" {
		return fmt.Errorf("AUTH_TOKEN is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.MinChunkChars <= 0 {
		return fmt.Errorf("MIN_CHUNK_CHARS must be positive, got %d", c.MinChunkChars)
	}
	if c.MaxChunkChars <= c.MinChunkChars {
		return fmt.Errorf("MAX_CHUNK_CHARS (%d) must exceed MIN_CHUNK_CHARS (%d)",
			c.MaxChunkChars, c.MinChunkChars)
	}
	if c.ChunkOverlapChars < 0 || c.ChunkOverlapChars >= c.MaxChunkChars {
		return fmt.Errorf("CHUNK_OVERLAP_CHARS (%d) must be in [0, MAX_CHUNK_CHARS)",
			c.ChunkOverlapChars)
	}
	switch c.EmbedProvider {
	case "ollama", "openai", "none":
	default:
		return fmt.Errorf("EMBED_PROVIDER must be ollama, openai, or none, got %q", c.EmbedProvider)
	}
	if c.EmbedProvider == "openai" && c.EmbedAPIKey == "" {
		return fmt.Errorf("EMBED_API_KEY is required when EMBED_PROVIDER=openai")
	}
	switch c.LLMProvider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("LLM_PROVIDER must be ollama or openai, got %q", c.LLMProvider)
	}
	if c.LLMProvider == "openai" && c.LLMAPIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required when LLM_PROVIDER=openai")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
