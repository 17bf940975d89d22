package search

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/signet-ai/signet/internal/model"
)

type fakeEmbeddingSource struct {
	embeddings []model.Embedding
}

func (f *fakeEmbeddingSource) AllEmbeddings(ctx context.Context) ([]model.Embedding, error) {
	return f.embeddings, nil
}

func TestVectorIndex_RanksByCosineSimilarity(t *testing.T) {
	closeID := uuid.New()
	farID := uuid.New()
	source := &fakeEmbeddingSource{embeddings: []model.Embedding{
		{SourceID: closeID, Vector: []float32{1, 0}},
		{SourceID: farID, Vector: []float32{-1, 0}},
	}}

	idx := NewVectorIndex(source)
	results, err := idx.Search(context.Background(), []float32{1, 0}, model.MemoryFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, closeID, results[0].MemoryID)
	require.Greater(t, results[0].Score, results[1].Score)
}

func TestVectorIndex_SkipsMismatchedDimensions(t *testing.T) {
	id := uuid.New()
	source := &fakeEmbeddingSource{embeddings: []model.Embedding{
		{SourceID: id, Vector: []float32{1, 0, 0}},
	}}

	idx := NewVectorIndex(source)
	results, err := idx.Search(context.Background(), []float32{1, 0}, model.MemoryFilter{}, 10)
	require.NoError(t, err)
	require.Empty(t, results)
}
