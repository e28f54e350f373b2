package api

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.orchestrator.Store().GetStats(r.Context())
	if err != nil {
		jsonError(w, "failed to collect stats: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"store":       stats,
		"queue_depth": s.orchestrator.QueueDepth(),
		"llm":         s.answerer.CallLatencies(),
	})
}
