package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
)

// SearchResult pairs a chunk with its document title and a relevance
// score in [0, 1], higher is better.
type SearchResult struct {
	Chunk    ChunkRecord `json:"chunk"`
	DocTitle string      `json:"doc_title"`
	Score    float64     `json:"score"`
}

// SearchVector ranks chunks by cosine similarity against the query
// vector. An empty docID searches across all documents. Similarity is
// computed in Go since the pure Go driver carries no vector extension.
func (s *Store) SearchVector(ctx context.Context, queryVector []float32, limit int, docID string) ([]SearchResult, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT c.chunk_id, c.doc_id, c.chunk_index, c.chunk_total, c.content,
		       c.char_count, c.hierarchy_path, c.strategy, c.size_flag,
		       c.table_ids, c.start_offset, c.end_offset, d.title, e.vector
		FROM chunks c
		INNER JOIN embeddings e ON e.chunk_rowid = c.id
		INNER JOIN documents d ON d.doc_id = c.doc_id`
	var args []any
	if docID != "" {
		query += " WHERE c.doc_id = ?"
		args = append(args, docID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var tableIDs string
		var blob []byte
		err := rows.Scan(&r.Chunk.ChunkID, &r.Chunk.DocID, &r.Chunk.Index, &r.Chunk.Total,
			&r.Chunk.Content, &r.Chunk.CharCount, &r.Chunk.Path, &r.Chunk.Strategy,
			&r.Chunk.SizeFlag, &tableIDs, &r.Chunk.Start, &r.Chunk.End, &r.DocTitle, &blob)
		if err != nil {
			return nil, err
		}
		if tableIDs != "" {
			r.Chunk.TableIDs = strings.Split(tableIDs, ",")
		}

		vector := deserializeVector(blob)
		if len(vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}
		r.Score = cosineSimilarity(queryVector, vector)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SearchText performs BM25 full-text search over chunk content and
// hierarchy paths using FTS5.
func (s *Store) SearchText(ctx context.Context, query string, limit int, docID string) ([]SearchResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return nil, fmt.Errorf("empty search query")
	}

	sqlQuery := `
		SELECT c.chunk_id, c.doc_id, c.chunk_index, c.chunk_total, c.content,
		       c.char_count, c.hierarchy_path, c.strategy, c.size_flag,
		       c.table_ids, c.start_offset, c.end_offset, d.title,
		       bm25(chunks_fts) AS score
		FROM chunks_fts
		INNER JOIN chunks c ON c.id = chunks_fts.rowid
		INNER JOIN documents d ON d.doc_id = c.doc_id
		WHERE chunks_fts MATCH ?`
	args := []any{sanitized}
	if docID != "" {
		sqlQuery += " AND c.doc_id = ?"
		args = append(args, docID)
	}
	sqlQuery += " ORDER BY score LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var tableIDs string
		var bm25 float64
		err := rows.Scan(&r.Chunk.ChunkID, &r.Chunk.DocID, &r.Chunk.Index, &r.Chunk.Total,
			&r.Chunk.Content, &r.Chunk.CharCount, &r.Chunk.Path, &r.Chunk.Strategy,
			&r.Chunk.SizeFlag, &tableIDs, &r.Chunk.Start, &r.Chunk.End, &r.DocTitle, &bm25)
		if err != nil {
			return nil, err
		}
		if tableIDs != "" {
			r.Chunk.TableIDs = strings.Split(tableIDs, ",")
		}
		// BM25 scores are negative, lower is better. Normalize into (0, 1].
		r.Score = 1.0 / (1.0 + math.Abs(bm25)/50.0)
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetChunk returns one chunk by its stable id.
func (s *Store) GetChunk(ctx context.Context, chunkID string) (*ChunkRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT chunk_id, doc_id, chunk_index, chunk_total, content, char_count,
		       hierarchy_path, strategy, size_flag, table_ids, start_offset, end_offset
		FROM chunks WHERE chunk_id = ?`, chunkID)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// sanitizeFTSQuery rewrites free text into a safe FTS5 query: each
// whitespace-separated term becomes a quoted prefix phrase. Prefix
// matching keeps Korean particles ("급여를", "급여는") from hiding
// exact-stem matches.
func sanitizeFTSQuery(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		terms = append(terms, `"`+f+`"*`)
	}
	return strings.Join(terms, " ")
}

// serializeVector converts a float32 slice to a byte blob (little-endian).
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice.
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
