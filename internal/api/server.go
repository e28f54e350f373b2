package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kordocs/reggest/internal/answer"
	"github.com/kordocs/reggest/internal/config"
	"github.com/kordocs/reggest/internal/pipeline"
)

// Server is the HTTP API server for reggest.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	answerer     *answer.Service
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, ans *answer.Service, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		answerer:     ans,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/healthz", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.AuthToken, s.log))

		r.Post("/v1/documents", s.handleUpload)
		r.Get("/v1/jobs/{jobID}", s.handleJobStatus)

		r.Get("/v1/documents", s.handleListDocuments)
		r.Get("/v1/documents/{docID}", s.handleGetDocument)
		r.Delete("/v1/documents/{docID}", s.handleDeleteDocument)
		r.Get("/v1/documents/{docID}/chunks", s.handleListChunks)

		r.Post("/v1/query", s.handleQuery)
		r.Get("/v1/stats", s.handleStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.orchestrator.Store().Ping(r.Context()); err != nil {
		jsonError(w, "store unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
