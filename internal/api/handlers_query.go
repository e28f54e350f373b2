package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kordocs/reggest/internal/answer"
	"github.com/kordocs/reggest/internal/store"
)

type queryRequest struct {
	Query string `json:"query"`
	DocID string `json:"doc_id,omitempty"`
	TopK  int    `json:"top_k,omitempty"`
	// RenderTables asks for the full grid/HTML/Markdown of every table
	// referenced by the answer's source chunks.
	RenderTables bool `json:"render_tables,omitempty"`
}

type queryResponse struct {
	Answer  string              `json:"answer"`
	Sources []answer.Source     `json:"sources"`
	Model   string              `json:"model"`
	Tables  []store.TableRecord `json:"tables,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		jsonError(w, "query is required", http.StatusBadRequest)
		return
	}

	resp, err := s.answerer.Answer(r.Context(), answer.Request{
		Query: req.Query,
		DocID: req.DocID,
		TopK:  req.TopK,
	})
	if err != nil {
		jsonError(w, "query failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	out := queryResponse{
		Answer:  resp.Answer,
		Sources: resp.Sources,
		Model:   resp.Model,
	}
	if out.Sources == nil {
		out.Sources = []answer.Source{}
	}
	if req.RenderTables {
		out.Tables = s.sourceTables(r.Context(), resp.Sources)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// sourceTables loads the rendered tables referenced by the answer's
// source chunks. Every table belongs to exactly one chunk, so the list
// carries no duplicates.
func (s *Server) sourceTables(ctx context.Context, sources []answer.Source) []store.TableRecord {
	st := s.orchestrator.Store()
	var tables []store.TableRecord
	for _, src := range sources {
		chunk, err := st.GetChunk(ctx, src.ChunkID)
		if err != nil {
			s.log.Warn("source chunk lookup failed", "chunk_id", src.ChunkID, "error", err)
			continue
		}
		for _, tid := range chunk.TableIDs {
			tbl, err := st.GetTable(ctx, chunk.DocID, tid)
			if err != nil {
				s.log.Warn("table lookup failed", "doc_id", chunk.DocID, "table_id", tid, "error", err)
				continue
			}
			tables = append(tables, *tbl)
		}
	}
	return tables
}
