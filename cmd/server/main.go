package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kordocs/reggest/internal/answer"
	"github.com/kordocs/reggest/internal/api"
	"github.com/kordocs/reggest/internal/config"
	"github.com/kordocs/reggest/internal/embed"
	"github.com/kordocs/reggest/internal/pipeline"
	"github.com/kordocs/reggest/internal/store"
)

func main() {
	cfg := config.Load()
	log := newLogger(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Error("failed to create data directory", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		log.Error("failed to open store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize clients.
	embedder := newEmbedder(cfg)
	chat := newChat(cfg)

	// Initialize pipeline and query service.
	orch := pipeline.NewOrchestrator(cfg, st, embedder, log)
	orch.Start(ctx)

	answerer := answer.NewService(st, embedder, chat, log, cfg.QueryTopK, cfg.MaxContextTokens)

	// Initialize HTTP server.
	srv := api.NewServer(orch, answerer, log, cfg)

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		if embedder != nil {
			embedder.Close()
		}
		chat.Close()
		st.Close()
	}()

	log.Info("starting reggest",
		"addr", cfg.Addr,
		"db", cfg.DBPath,
		"embed_provider", cfg.EmbedProvider,
		"llm_provider", cfg.LLMProvider,
		"workers", cfg.Workers)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// newEmbedder returns nil when embeddings are disabled; documents are
// then stored for full-text search only.
func newEmbedder(cfg config.Config) embed.Embedder {
	switch cfg.EmbedProvider {
	case "openai":
		return embed.NewOpenAIEmbedder(cfg.EmbedBaseURL, cfg.EmbedAPIKey, cfg.EmbedModel, cfg.EmbedDimensions)
	case "none":
		return nil
	default:
		return embed.NewOllamaEmbedder(cfg.EmbedBaseURL, cfg.EmbedModel, cfg.EmbedDimensions)
	}
}

func newChat(cfg config.Config) answer.ChatClient {
	if cfg.LLMProvider == "openai" {
		return answer.NewOpenAIChat(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
	}
	return answer.NewOllamaChat(cfg.LLMBaseURL, cfg.LLMModel)
}
