package search

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/signet-ai/signet/internal/model"
)

// EmbeddingSource is the slice of storage.DB VectorIndex reads from.
type EmbeddingSource interface {
	AllEmbeddings(ctx context.Context) ([]model.Embedding, error)
}

// VectorIndex is the default dense index: brute-force cosine KNN over every
// stored embedding, held in process. Adequate at single-user daemon scale;
// an external Searcher (QdrantIndex) takes over when SIGNET_QDRANT_URL is set.
type VectorIndex struct {
	source EmbeddingSource
}

// NewVectorIndex builds a VectorIndex reading embeddings from source.
func NewVectorIndex(source EmbeddingSource) *VectorIndex {
	return &VectorIndex{source: source}
}

// Search returns the top-limit memories by cosine similarity to embedding.
// filter is not applied: every stored vector whose dimension matches
// embedding is scored, and neither VectorIndex nor the Engine drops vector
// hits that do not match filter.
func (v *VectorIndex) Search(ctx context.Context, embedding []float32, filter model.MemoryFilter, limit int) ([]Result, error) {
	all, err := v.source.AllEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("search: list embeddings: %w", err)
	}

	type scored struct {
		id    uuid.UUID
		score float64
	}
	candidates := make([]scored, 0, len(all))
	for _, e := range all {
		if len(e.Vector) != len(embedding) {
			continue
		}
		s := cosineSimilarity(embedding, e.Vector)
		candidates = append(candidates, scored{id: e.SourceID, score: s})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]Result, len(candidates))
	for i, c := range candidates {
		out[i] = Result{MemoryID: c.id, Score: float32(c.score), Source: "vector"}
	}
	return out, nil
}

// Healthy always succeeds: the in-process index has no external dependency.
func (v *VectorIndex) Healthy(ctx context.Context) error {
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Map [-1,1] to [0,1] so it blends cleanly with the [0,1] bm25-derived
	// keyword score.
	return (cos + 1) / 2
}
