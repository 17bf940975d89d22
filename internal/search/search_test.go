package search

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/signet-ai/signet/internal/model"
	"github.com/signet-ai/signet/internal/storage"
)

type fakeStore struct {
	ftsHits    []storage.FTSHit
	substrings []uuid.UUID
	memories   map[uuid.UUID]model.Memory
}

func (f *fakeStore) SearchFTS(ctx context.Context, queryText string, filter model.MemoryFilter, limit int) ([]storage.FTSHit, error) {
	return f.ftsHits, nil
}

func (f *fakeStore) SubstringSearch(ctx context.Context, queryText string, filter model.MemoryFilter, limit int) ([]uuid.UUID, error) {
	return f.substrings, nil
}

func (f *fakeStore) Enrich(ctx context.Context, ids []uuid.UUID) ([]model.Memory, error) {
	out := make([]model.Memory, 0, len(ids))
	for _, id := range ids {
		if m, ok := f.memories[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeSearcher struct {
	results []Result
}

func (f *fakeSearcher) Search(ctx context.Context, embedding []float32, filter model.MemoryFilter, limit int) ([]Result, error) {
	return f.results, nil
}

func (f *fakeSearcher) Healthy(ctx context.Context) error { return nil }

func TestEngine_BlendsVectorAndKeywordScores(t *testing.T) {
	idHybrid := uuid.New()
	idVectorOnly := uuid.New()
	idKeywordOnly := uuid.New()

	store := &fakeStore{
		ftsHits: []storage.FTSHit{
			{MemoryID: idHybrid, RawScore: -1.0},
			{MemoryID: idKeywordOnly, RawScore: -2.0},
		},
		memories: map[uuid.UUID]model.Memory{
			idHybrid:      {ID: idHybrid},
			idVectorOnly:  {ID: idVectorOnly},
			idKeywordOnly: {ID: idKeywordOnly},
		},
	}
	dense := &fakeSearcher{results: []Result{
		{MemoryID: idHybrid, Score: 0.9},
		{MemoryID: idVectorOnly, Score: 0.8},
	}}

	engine := NewEngine(store, dense)
	memories, results, err := engine.Search(context.Background(), Query{
		Text:   "some query",
		Vector: []float32{0.1, 0.2},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Len(t, memories, 3)

	byID := map[uuid.UUID]Result{}
	for _, r := range results {
		byID[r.MemoryID] = r
	}
	require.Equal(t, "hybrid", byID[idHybrid].Source)
	require.Equal(t, "vector", byID[idVectorOnly].Source)
	require.Equal(t, "keyword", byID[idKeywordOnly].Source)

	// Descending score order.
	for i := 1; i < len(results); i++ {
		require.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestEngine_DropsScoresBelowMinScore(t *testing.T) {
	id := uuid.New()
	store := &fakeStore{memories: map[uuid.UUID]model.Memory{id: {ID: id}}}
	dense := &fakeSearcher{results: []Result{{MemoryID: id, Score: 0.05}}}

	engine := NewEngine(store, dense)
	_, results, err := engine.Search(context.Background(), Query{Vector: []float32{1}, MinScore: 0.1})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestEngine_FallsBackToSubstringWhenNoIndexMatches(t *testing.T) {
	id := uuid.New()
	store := &fakeStore{
		substrings: []uuid.UUID{id},
		memories:   map[uuid.UUID]model.Memory{id: {ID: id}},
	}

	engine := NewEngine(store, nil)
	memories, results, err := engine.Search(context.Background(), Query{Text: "needle"})
	require.NoError(t, err)
	require.Len(t, memories, 1)
	require.Len(t, results, 1)
	require.Equal(t, "keyword", results[0].Source)
}

func TestEngine_EmptyQueryReturnsNoResults(t *testing.T) {
	store := &fakeStore{}
	engine := NewEngine(store, nil)
	memories, results, err := engine.Search(context.Background(), Query{})
	require.NoError(t, err)
	require.Nil(t, memories)
	require.Nil(t, results)
}
