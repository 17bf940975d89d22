package temporal

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/signet-ai/signet/internal/model"
)

type fakeStore struct {
	memories []model.Memory
	updates  map[uuid.UUID]float64
}

func (f *fakeStore) List(ctx context.Context, filter model.MemoryFilter, limit, offset int) ([]model.Memory, error) {
	if offset >= len(f.memories) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.memories) {
		end = len(f.memories)
	}
	return f.memories[offset:end], nil
}

func (f *fakeStore) UpdateStrength(ctx context.Context, id uuid.UUID, strength float64) error {
	if f.updates == nil {
		f.updates = map[uuid.UUID]float64{}
	}
	f.updates[id] = strength
	return nil
}

func TestRecomputeAll_UpdatesOnlySignificantChanges(t *testing.T) {
	now := time.Now()
	stale := model.Memory{
		ID:         uuid.New(),
		Importance: 0.5,
		CreatedAt:  now.Add(-200 * 24 * time.Hour),
		Strength:   0.99, // far from what it should decay to
	}
	fresh := model.Memory{
		ID:         uuid.New(),
		Importance: 0.5,
		CreatedAt:  now,
		Strength:   Strength(model.Memory{Importance: 0.5, CreatedAt: now}, now),
	}

	store := &fakeStore{memories: []model.Memory{stale, fresh}}

	n, err := RecomputeAll(context.Background(), store, now, 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, updatedFresh := store.updates[fresh.ID]
	require.False(t, updatedFresh)
	_, updatedStale := store.updates[stale.ID]
	require.True(t, updatedStale)
}

func TestRecomputeAll_PagesAcrossBatches(t *testing.T) {
	now := time.Now()
	var memories []model.Memory
	for i := 0; i < 5; i++ {
		memories = append(memories, model.Memory{
			ID:         uuid.New(),
			Importance: 0.5,
			CreatedAt:  now.Add(-500 * 24 * time.Hour),
			Strength:   0.999,
		})
	}
	store := &fakeStore{memories: memories}

	n, err := RecomputeAll(context.Background(), store, now, 2)
	require.NoError(t, err)
	require.Equal(t, 5, n)
}
