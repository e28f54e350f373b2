package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kordocs/reggest/internal/chunker"
	"github.com/kordocs/reggest/internal/doctree"
	"github.com/kordocs/reggest/internal/embed"
	"github.com/kordocs/reggest/internal/parser"
	"github.com/kordocs/reggest/internal/store"
)

// EmbedSettings configures the embedding phase of the pipeline.
type EmbedSettings struct {
	Provider    string
	Model       string
	BatchSize   int
	Concurrency int
}

// Worker processes a single document job.
type Worker struct {
	store    *store.Store
	embedder embed.Embedder // nil disables the embedding phase
	log      *slog.Logger

	embedCfg    EmbedSettings
	pdfFallback bool
}

func NewWorker(st *store.Store, emb embed.Embedder, log *slog.Logger, embedCfg EmbedSettings, pdfFallback bool) *Worker {
	if embedCfg.BatchSize <= 0 {
		embedCfg.BatchSize = 16
	}
	if embedCfg.Concurrency <= 0 {
		embedCfg.Concurrency = 4
	}
	return &Worker{
		store:       st,
		embedder:    emb,
		log:         log,
		embedCfg:    embedCfg,
		pdfFallback: pdfFallback,
	}
}

// Process runs the full ingest pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID)

	// Phase 1: Decode
	job.SetStatus(StatusDecoding, "decoding")
	p, err := parser.ForFile(job.Filename)
	if err != nil {
		log.Error("unsupported format", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "decoding")
		return
	}
	if pdf, ok := p.(*parser.PDFParser); ok {
		pdf.FallbackPdftotext = w.pdfFallback
	}

	dec, err := p.Parse(bytes.NewReader(job.FileData()), job.Filename)
	if err != nil {
		log.Error("decode failed", "error", err)
		job.AddError(fmt.Sprintf("decode: %s", err))
		job.SetStatus(StatusFailed, "decoding")
		return
	}
	if strings.TrimSpace(dec.Text) == "" {
		log.Warn("no extractable text")
		job.AddError("no extractable text")
		job.SetStatus(StatusFailed, "decoding")
		return
	}
	title := job.Title
	if title == "" {
		title = dec.Title
	}

	// Hash the decoded text rather than the raw bytes, so the same
	// regulation uploaded in two formats dedups to one document.
	hash := ContentHashHex([]byte(dec.Text))
	job.SetContentHash(hash)

	// Phase 1.5: Dedup check
	existingID, exists, err := w.store.HasContentHash(ctx, hash)
	if err != nil {
		log.Warn("dedup check failed, proceeding", "error", err)
	} else if exists {
		log.Info("duplicate document, skipping", "existing_doc_id", existingID)
		job.SetDocID(existingID)
		job.SetStatus(StatusDupSkipped, "dedup")
		return
	}

	// Phase 2: Chunk
	job.SetStatus(StatusChunking, "chunking")
	doc, err := chunker.Process(job.DocID, title, dec.Text, dec.Anchors, job.Band())
	if err != nil {
		log.Error("chunking failed", "error", err)
		job.AddError(fmt.Sprintf("chunk: %s", err))
		job.SetStatus(StatusFailed, "chunking")
		return
	}
	job.SetChunkCounts(len(doc.Chunks), len(doc.Tables))
	log.Info("chunked document",
		"chunks", len(doc.Chunks),
		"tables", len(doc.Tables),
		"strategy", doc.Chunks[0].Strategy)
	if viol := chunker.SizeViolations(doc); len(viol) > 0 {
		log.Warn("chunks outside size band",
			"count", len(viol),
			"chunk_id", viol[0].ChunkID,
			"chars", viol[0].CharCount,
			"flag", string(viol[0].Flag))
	}

	// Phase 3: Embed
	var vectors [][]float32
	if w.embedder != nil {
		job.SetStatus(StatusEmbedding, "embedding")
		vectors, err = w.embedChunks(ctx, job, doc.Chunks)
		if err != nil {
			log.Error("embedding failed", "error", err)
			job.AddError(fmt.Sprintf("embed: %s", err))
			job.SetStatus(StatusFailed, "embedding")
			return
		}
	}

	// Phase 4: Store everything in one transaction.
	job.SetStatus(StatusStoring, "storing")
	meta := store.InsertMeta{
		Filename:    job.Filename,
		ContentHash: hash,
		Vectors:     vectors,
	}
	if vectors != nil {
		meta.Provider = w.embedCfg.Provider
		meta.Model = w.embedCfg.Model
	}
	if err := w.store.InsertProcessedDocument(ctx, doc, meta); err != nil {
		log.Error("store failed", "error", err)
		job.AddError(fmt.Sprintf("store: %s", err))
		job.SetStatus(StatusFailed, "storing")
		return
	}

	log.Info("document stored",
		"chunks", len(doc.Chunks),
		"tables", len(doc.Tables),
		"embedded", vectors != nil)
	job.SetStatus(StatusDone, "done")
}

// embedChunks embeds chunk texts batch-wise with bounded concurrency,
// retrying transient provider errors per batch. Results keep chunk order.
func (w *Worker) embedChunks(ctx context.Context, job *Job, chunks []doctree.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}

	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.embedCfg.Concurrency)

	for start := 0; start < len(texts); start += w.embedCfg.BatchSize {
		end := min(start+w.embedCfg.BatchSize, len(texts))
		g.Go(func() error {
			var vecs [][]float32
			var lastErr error
			for attempt := range MaxRetries {
				vecs, lastErr = w.embedder.Embed(gctx, texts[start:end])
				if lastErr == nil || !IsRetryable(lastErr) {
					break
				}
				w.log.Warn("retryable embedding error",
					"job_id", job.ID, "batch_start", start, "attempt", attempt, "error", lastErr)
				select {
				case <-time.After(Backoff(attempt)):
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			if lastErr != nil {
				return fmt.Errorf("batch %d-%d: %w", start, end, lastErr)
			}
			copy(vectors[start:end], vecs)
			job.AddEmbedded(end - start)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
