// Package store persists processed documents, chunks, embeddings, and
// table artifacts in SQLite. It uses the pure Go driver, so the service
// builds without CGO.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kordocs/reggest/internal/doctree"
)

// ErrNotFound is returned when a requested entity doesn't exist.
var ErrNotFound = errors.New("not found")

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path and applies migrations.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode for better concurrency between the writer and readers.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// SQLite benefits from a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DocumentRecord is a documents-table row.
type DocumentRecord struct {
	DocID         string    `json:"doc_id"`
	Title         string    `json:"title"`
	Filename      string    `json:"filename"`
	ContentHash   string    `json:"content_hash"`
	Strategy      string    `json:"strategy"`
	Chapters      int       `json:"chapters"`
	Articles      int       `json:"articles"`
	ChunkCount    int       `json:"chunk_count"`
	TableCount    int       `json:"table_count"`
	EmbedProvider string    `json:"embed_provider,omitempty"`
	EmbedModel    string    `json:"embed_model,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ChunkRecord is a chunks-table row.
type ChunkRecord struct {
	ChunkID   string   `json:"chunk_id"`
	DocID     string   `json:"doc_id"`
	Index     int      `json:"chunk_index"`
	Total     int      `json:"chunk_total"`
	Content   string   `json:"content"`
	CharCount int      `json:"char_count"`
	Path      string   `json:"hierarchy_path,omitempty"`
	Strategy  string   `json:"strategy"`
	SizeFlag  string   `json:"size_flag,omitempty"`
	TableIDs  []string `json:"table_ids,omitempty"`
	Start     int      `json:"start_offset"`
	End       int      `json:"end_offset"`
}

// IndexLabel renders the chunk's position as "i/total".
func (c ChunkRecord) IndexLabel() string {
	return fmt.Sprintf("%d/%d", c.Index, c.Total)
}

// TableRecord is a doc_tables-table row.
type TableRecord struct {
	DocID    string     `json:"doc_id"`
	TableID  string     `json:"table_id"`
	Caption  string     `json:"caption"`
	Grid     [][]string `json:"grid"`
	HTML     string     `json:"html"`
	Markdown string     `json:"markdown"`
	ChunkID  string     `json:"chunk_id"`
}

// InsertMeta carries ingest metadata that lives outside the processed
// document itself.
type InsertMeta struct {
	Filename    string
	ContentHash string
	Provider    string
	Model       string
	// Vectors holds one embedding per chunk, in chunk order. Nil means
	// the document is stored without embeddings.
	Vectors [][]float32
}

// HasContentHash reports whether a document with this content hash is
// already stored, returning its doc_id when so.
func (s *Store) HasContentHash(ctx context.Context, hash string) (string, bool, error) {
	var docID string
	err := s.db.QueryRowContext(ctx, "SELECT doc_id FROM documents WHERE content_hash = ?", hash).Scan(&docID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return docID, true, nil
}

// InsertProcessedDocument stores a document with its chunks, table
// artifacts, and embeddings in a single transaction. Either everything
// lands or nothing does.
func (s *Store) InsertProcessedDocument(ctx context.Context, doc *doctree.ProcessedDocument, meta InsertMeta) error {
	if len(doc.Chunks) == 0 {
		return fmt.Errorf("document %s has no chunks", doc.DocID)
	}
	if meta.Vectors != nil && len(meta.Vectors) != len(doc.Chunks) {
		return fmt.Errorf("vector count mismatch: %d vectors for %d chunks", len(meta.Vectors), len(doc.Chunks))
	}

	strategy := doc.Chunks[0].Strategy

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (doc_id, title, filename, content_hash, strategy,
		                       chapters, articles, chunk_count, table_count,
		                       embed_provider, embed_model)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.DocID, doc.Title, meta.Filename, meta.ContentHash, strategy,
		doc.Chapters, doc.Articles, len(doc.Chunks), len(doc.Tables),
		meta.Provider, meta.Model)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	tableOwner := make(map[string]string, len(doc.Tables))
	for i, c := range doc.Chunks {
		var rowid int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO chunks (chunk_id, doc_id, chunk_index, chunk_total,
			                    content, char_count, hierarchy_path, strategy,
			                    size_flag, table_ids, start_offset, end_offset)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			c.ChunkID, c.DocID, c.Index, c.Total,
			c.Text, c.CharCount, c.Path.Rendered, c.Strategy,
			string(c.SizeFlag), strings.Join(c.TableIDs, ","), c.Start, c.End).Scan(&rowid)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ChunkID, err)
		}
		for _, tid := range c.TableIDs {
			tableOwner[tid] = c.ChunkID
		}

		if meta.Vectors != nil {
			vec := meta.Vectors[i]
			_, err = tx.ExecContext(ctx, `
				INSERT INTO embeddings (chunk_rowid, vector, dimension, provider, model)
				VALUES (?, ?, ?, ?, ?)`,
				rowid, serializeVector(vec), len(vec), meta.Provider, meta.Model)
			if err != nil {
				return fmt.Errorf("insert embedding for %s: %w", c.ChunkID, err)
			}
		}
	}

	for _, t := range doc.Tables {
		gridJSON, err := json.Marshal(t.Grid)
		if err != nil {
			return fmt.Errorf("marshal grid for %s: %w", t.TableID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO doc_tables (doc_id, table_id, caption, grid_json, html, markdown, chunk_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			doc.DocID, t.TableID, t.Caption, string(gridJSON), t.HTML, t.Markdown, tableOwner[t.TableID])
		if err != nil {
			return fmt.Errorf("insert table %s: %w", t.TableID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetDocument returns one document by id.
func (s *Store) GetDocument(ctx context.Context, docID string) (*DocumentRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT doc_id, title, filename, content_hash, strategy, chapters, articles,
		       chunk_count, table_count, embed_provider, embed_model, created_at
		FROM documents WHERE doc_id = ?`, docID)
	return scanDocument(row)
}

// ListDocuments returns all documents, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, title, filename, content_hash, strategy, chapters, articles,
		       chunk_count, table_count, embed_provider, embed_model, created_at
		FROM documents ORDER BY created_at DESC, doc_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []DocumentRecord
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*DocumentRecord, error) {
	var d DocumentRecord
	err := row.Scan(&d.DocID, &d.Title, &d.Filename, &d.ContentHash, &d.Strategy,
		&d.Chapters, &d.Articles, &d.ChunkCount, &d.TableCount,
		&d.EmbedProvider, &d.EmbedModel, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DeleteDocument removes a document and everything hanging off it. The
// chunk deletes go through SQL directly so the FTS triggers fire.
func (s *Store) DeleteDocument(ctx context.Context, docID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM embeddings WHERE chunk_rowid IN (SELECT id FROM chunks WHERE doc_id = ?)", docID); err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE doc_id = ?", docID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM doc_tables WHERE doc_id = ?", docID); err != nil {
		return fmt.Errorf("delete tables: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE doc_id = ?", docID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// ListChunks returns a document's chunks in chunk order.
func (s *Store) ListChunks(ctx context.Context, docID string) ([]ChunkRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, doc_id, chunk_index, chunk_total, content, char_count,
		       hierarchy_path, strategy, size_flag, table_ids, start_offset, end_offset
		FROM chunks WHERE doc_id = ? ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []ChunkRecord
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func scanChunk(row rowScanner) (ChunkRecord, error) {
	var c ChunkRecord
	var tableIDs string
	err := row.Scan(&c.ChunkID, &c.DocID, &c.Index, &c.Total, &c.Content, &c.CharCount,
		&c.Path, &c.Strategy, &c.SizeFlag, &tableIDs, &c.Start, &c.End)
	if err != nil {
		return ChunkRecord{}, err
	}
	if tableIDs != "" {
		c.TableIDs = strings.Split(tableIDs, ",")
	}
	return c, nil
}

// GetTable returns one rendered table artifact.
func (s *Store) GetTable(ctx context.Context, docID, tableID string) (*TableRecord, error) {
	var t TableRecord
	var gridJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT doc_id, table_id, caption, grid_json, html, markdown, chunk_id
		FROM doc_tables WHERE doc_id = ? AND table_id = ?`, docID, tableID).
		Scan(&t.DocID, &t.TableID, &t.Caption, &gridJSON, &t.HTML, &t.Markdown, &t.ChunkID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(gridJSON), &t.Grid); err != nil {
		return nil, fmt.Errorf("decode grid for %s: %w", tableID, err)
	}
	return &t, nil
}

// Stats summarizes what the store holds.
type Stats struct {
	Documents  int            `json:"documents"`
	Chunks     int            `json:"chunks"`
	Tables     int            `json:"tables"`
	Embeddings int            `json:"embeddings"`
	ByStrategy map[string]int `json:"by_strategy"`
}

// GetStats counts stored entities.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	st := &Stats{ByStrategy: make(map[string]int)}

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM documents", &st.Documents},
		{"SELECT COUNT(*) FROM chunks", &st.Chunks},
		{"SELECT COUNT(*) FROM doc_tables", &st.Tables},
		{"SELECT COUNT(*) FROM embeddings", &st.Embeddings},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}

	rows, err := s.db.QueryContext(ctx, "SELECT strategy, COUNT(*) FROM documents GROUP BY strategy")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var strategy string
		var n int
		if err := rows.Scan(&strategy, &n); err != nil {
			return nil, err
		}
		st.ByStrategy[strategy] = n
	}
	return st, rows.Err()
}
