package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kordocs/reggest/internal/chunker"
	"github.com/kordocs/reggest/internal/config"
	"github.com/kordocs/reggest/internal/embed"
	"github.com/kordocs/reggest/internal/store"
)

// Orchestrator manages the document ingestion pipeline.
type Orchestrator struct {
	jobs     *JobStore
	queue    chan *Job
	store    *store.Store
	embedder embed.Embedder
	log      *slog.Logger
	cfg      config.Config
	band     chunker.SizeBand

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. A nil embedder stores documents
// without vectors; they stay reachable through full-text search.
func NewOrchestrator(cfg config.Config, st *store.Store, emb embed.Embedder, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:     NewJobStore(cfg.JobTTL),
		queue:    make(chan *Job, cfg.MaxQueueSize),
		store:    st,
		embedder: emb,
		log:      log,
		cfg:      cfg,
		band: chunker.SizeBand{
			MinChars:     cfg.MinChunkChars,
			MaxChars:     cfg.MaxChunkChars,
			OverlapChars: cfg.ChunkOverlapChars,
		},
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.Workers {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.store, o.embedder, o.log, EmbedSettings{
				Provider:    o.cfg.EmbedProvider,
				Model:       o.cfg.EmbedModel,
				BatchSize:   o.cfg.EmbedBatch,
				Concurrency: o.cfg.EmbedConcurrency,
			}, o.cfg.PDFFallbackPdftotext)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a new job for processing. Jobs without an explicit size
// band get the configured default.
func (o *Orchestrator) Submit(job *Job) error {
	if job.Band() == (chunker.SizeBand{}) {
		job.SetBand(o.band)
	}
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// DefaultBand returns the configured chunk size band.
func (o *Orchestrator) DefaultBand() chunker.SizeBand {
	return o.band
}

// Store returns the document store for direct use by API handlers.
func (o *Orchestrator) Store() *store.Store {
	return o.store
}
