package search

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/signet-ai/signet/internal/hashing"
	"github.com/signet-ai/signet/internal/storage"
)

// Embedder generates vector embeddings from text. Mirrors the root
// package's Embedder contract without importing it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BackfillStore is the slice of storage.DB the embedding backfill job
// needs: claim queued jobs, write the resulting vector, and report success
// or failure back onto the job row.
type BackfillStore interface {
	ClaimPendingEmbeddings(ctx context.Context, limit int) ([]storage.PendingEmbedding, error)
	UpsertEmbedding(ctx context.Context, contentHash string, vector []float32, sourceType string, sourceID uuid.UUID) (uuid.UUID, error)
	AckPendingEmbedding(ctx context.Context, id uuid.UUID) error
	FailPendingEmbedding(ctx context.Context, id uuid.UUID, errMsg string) error
}

// BackfillEmbeddings claims up to batchSize queued embedding jobs and runs
// them through embedder, one at a time (embedder implementations are not
// assumed to be safe for concurrent use — Ollama, in particular, isn't).
// Grounded on the teacher's BackfillEmbeddings/BackfillClaims batch-oriented
// startup backfill, generalized into a job-queue drain callable from a
// recurring ticker rather than only once at boot.
func BackfillEmbeddings(ctx context.Context, store BackfillStore, embedder Embedder, batchSize int) (int, error) {
	jobs, err := store.ClaimPendingEmbeddings(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("search: claim pending embeddings: %w", err)
	}

	var done int
	for _, j := range jobs {
		vec, err := embedder.Embed(ctx, j.Content)
		if err != nil {
			_ = store.FailPendingEmbedding(ctx, j.ID, err.Error())
			continue
		}

		hash := hashing.ContentHash(j.Content)
		if _, err := store.UpsertEmbedding(ctx, hash, vec, "memory", j.MemoryID); err != nil {
			_ = store.FailPendingEmbedding(ctx, j.ID, err.Error())
			continue
		}

		if err := store.AckPendingEmbedding(ctx, j.ID); err != nil {
			return done, fmt.Errorf("search: ack pending embedding %s: %w", j.ID, err)
		}
		done++
	}

	return done, nil
}
