package search

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/signet-ai/signet/internal/model"
)

// OutboxSource is the slice of storage.DB the outbox worker polls. Unlike
// the teacher's Postgres outbox, there's no separate outbox table: SQLite
// has a single writer, so the worker re-reads every embedding on each pass,
// skips content hashes it has already pushed in this process, and lets
// Qdrant upserts be naturally idempotent.
type OutboxSource interface {
	AllEmbeddings(ctx context.Context) ([]model.Embedding, error)
	Get(ctx context.Context, id uuid.UUID) (model.Memory, error)
}

// OutboxWorker polls for newly embedded memories and syncs them to Qdrant.
type OutboxWorker struct {
	source       OutboxSource
	index        *QdrantIndex
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int

	mu        sync.Mutex
	synced    map[string]struct{} // content hashes already pushed this process lifetime
	started   atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewOutboxWorker creates a new outbox worker targeting index.
func NewOutboxWorker(source OutboxSource, index *QdrantIndex, logger *slog.Logger, pollInterval time.Duration, batchSize int) *OutboxWorker {
	return &OutboxWorker{
		source:       source,
		index:        index,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		synced:       make(map[string]struct{}),
		done:         make(chan struct{}),
	}
}

// Start begins the background poll loop. Safe to call only once.
func (w *OutboxWorker) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		w.logger.Warn("search outbox: Start called more than once, ignoring")
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.pollLoop(loopCtx)
}

// Stop cancels the poll loop and blocks until it exits.
func (w *OutboxWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	<-w.done
}

func (w *OutboxWorker) pollLoop(ctx context.Context) {
	defer w.closeOnce.Do(func() { close(w.done) })

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			w.syncBatch(batchCtx)
			cancel()
		}
	}
}

func (w *OutboxWorker) syncBatch(ctx context.Context) {
	if w.index == nil {
		return
	}

	embeddings, err := w.source.AllEmbeddings(ctx)
	if err != nil {
		w.logger.Error("search outbox: list embeddings", "error", err)
		return
	}

	var pending []model.Embedding
	w.mu.Lock()
	for _, e := range embeddings {
		if _, ok := w.synced[e.ContentHash]; !ok {
			pending = append(pending, e)
		}
		if len(pending) >= w.batchSize {
			break
		}
	}
	w.mu.Unlock()
	if len(pending) == 0 {
		return
	}

	points := make([]Point, 0, len(pending))
	synced := make([]string, 0, len(pending))
	for _, e := range pending {
		m, err := w.source.Get(ctx, e.SourceID)
		if err != nil {
			w.logger.Warn("search outbox: memory for embedding not found, skipping", "memory_id", e.SourceID, "error", err)
			continue
		}
		if m.IsDeleted {
			continue
		}
		points = append(points, Point{
			MemoryID:    m.ID,
			ContentHash: m.ContentHash,
			Type:        string(m.Type),
			Importance:  float32(m.Importance),
			Pinned:      m.Pinned,
			CreatedAt:   m.CreatedAt,
			Embedding:   e.Vector,
		})
		synced = append(synced, e.ContentHash)
	}
	if len(points) == 0 {
		return
	}

	if err := w.index.Upsert(ctx, points); err != nil {
		w.logger.Error("search outbox: qdrant upsert", "error", err, "count", len(points))
		return
	}

	w.mu.Lock()
	for _, hash := range synced {
		w.synced[hash] = struct{}{}
	}
	w.mu.Unlock()
	w.logger.Info("search outbox: synced embeddings to qdrant", "count", len(points))
}
