package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kordocs/reggest/internal/embed"
	"github.com/kordocs/reggest/internal/store"
)

// NoEvidenceAnswer is returned without calling the LLM when retrieval
// finds nothing.
const NoEvidenceAnswer = "제공된 규정에서 해당 내용을 찾을 수 없습니다."

// Retriever is the slice of the store the answer path needs.
type Retriever interface {
	SearchVector(ctx context.Context, queryVector []float32, limit int, docID string) ([]store.SearchResult, error)
	SearchText(ctx context.Context, query string, limit int, docID string) ([]store.SearchResult, error)
	GetTable(ctx context.Context, docID, tableID string) (*store.TableRecord, error)
}

// Service answers questions grounded in stored regulation chunks.
type Service struct {
	retriever Retriever
	embedder  embed.Embedder // nil means text search only
	chat      ChatClient
	logger    *slog.Logger
	topK      int
	maxTokens int
	stats     *CallStats
}

func NewService(retriever Retriever, embedder embed.Embedder, chat ChatClient, logger *slog.Logger, topK, maxContextTokens int) *Service {
	if topK <= 0 {
		topK = 5
	}
	if maxContextTokens <= 0 {
		maxContextTokens = 3000
	}
	return &Service{
		retriever: retriever,
		embedder:  embedder,
		chat:      chat,
		logger:    logger,
		topK:      topK,
		maxTokens: maxContextTokens,
		stats:     NewCallStats(time.Hour),
	}
}

// CallLatencies reports rolling latency aggregates for recent model
// calls, keyed by operation.
func (s *Service) CallLatencies() map[string]LatencySnapshot {
	return s.stats.Snapshot()
}

// Request is one question, optionally scoped to a single document.
type Request struct {
	Query string `json:"query"`
	DocID string `json:"doc_id,omitempty"`
	TopK  int    `json:"top_k,omitempty"`
}

// Source identifies a chunk the answer was grounded on.
type Source struct {
	ChunkID  string  `json:"chunk_id"`
	DocID    string  `json:"doc_id"`
	DocTitle string  `json:"doc_title"`
	Path     string  `json:"hierarchy_path,omitempty"`
	Label    string  `json:"chunk_index"`
	Score    float64 `json:"score"`
	Snippet  string  `json:"snippet"`
}

// Response carries the answer and its grounding.
type Response struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources,omitempty"`
	Model   string   `json:"model"`
}

// Answer retrieves the most relevant chunks for the query, assembles a
// budgeted context, and asks the LLM.
func (s *Service) Answer(ctx context.Context, req Request) (*Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.topK
	}

	results, err := s.retrieve(ctx, query, topK, req.DocID)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	if len(results) == 0 {
		s.logger.Info("no evidence found", "query", query, "doc_id", req.DocID)
		return &Response{Answer: NoEvidenceAnswer, Model: s.chat.Model()}, nil
	}

	blocks, sources := s.assemble(ctx, results)
	user := BuildAnswerPrompt(query, blocks)

	start := time.Now()
	text, err := s.chat.Chat(ctx, AnswerSystemPrompt, user)
	s.stats.Record("chat", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}

	s.logger.Info("answered query",
		"query", query,
		"sources", len(sources),
		"context_tokens", EstimateTokens(user))

	return &Response{
		Answer:  strings.TrimSpace(text),
		Sources: sources,
		Model:   s.chat.Model(),
	}, nil
}

// retrieve prefers vector search and falls back to full-text search
// when there is no embedder, embedding fails, or nothing has vectors.
func (s *Service) retrieve(ctx context.Context, query string, topK int, docID string) ([]store.SearchResult, error) {
	if s.embedder != nil {
		start := time.Now()
		vecs, err := s.embedder.Embed(ctx, []string{query})
		s.stats.Record("embed_query", time.Since(start))
		if err != nil {
			s.logger.Warn("query embedding failed, falling back to text search", "error", err)
		} else if len(vecs) == 1 {
			results, err := s.retriever.SearchVector(ctx, vecs[0], topK, docID)
			if err != nil {
				return nil, err
			}
			if len(results) > 0 {
				return results, nil
			}
		}
	}
	return s.retriever.SearchText(ctx, query, topK, docID)
}

// assemble builds context blocks in score order until the token budget
// runs out. The top result is always included.
func (s *Service) assemble(ctx context.Context, results []store.SearchResult) ([]ContextBlock, []Source) {
	var blocks []ContextBlock
	var sources []Source
	used := 0

	for _, r := range results {
		b := ContextBlock{
			DocTitle: r.DocTitle,
			Path:     r.Chunk.Path,
			Label:    r.Chunk.IndexLabel(),
			Body:     r.Chunk.Content,
		}
		for _, tid := range r.Chunk.TableIDs {
			tab, err := s.retriever.GetTable(ctx, r.Chunk.DocID, tid)
			if err != nil {
				s.logger.Warn("table lookup failed", "doc_id", r.Chunk.DocID, "table_id", tid, "error", err)
				continue
			}
			b.Tables = append(b.Tables, tab.Caption+"\n"+tab.Markdown)
		}

		cost := EstimateTokens(b.Body)
		for _, t := range b.Tables {
			cost += EstimateTokens(t)
		}
		if used > 0 && used+cost > s.maxTokens {
			break
		}
		used += cost

		blocks = append(blocks, b)
		sources = append(sources, Source{
			ChunkID:  r.Chunk.ChunkID,
			DocID:    r.Chunk.DocID,
			DocTitle: r.DocTitle,
			Path:     r.Chunk.Path,
			Label:    r.Chunk.IndexLabel(),
			Score:    r.Score,
			Snippet:  snippet(r.Chunk.Content, 120),
		})
	}
	return blocks, sources
}

func snippet(s string, maxRunes int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= maxRunes {
		return string(runes)
	}
	return string(runes[:maxRunes]) + "..."
}
