package temporal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/signet-ai/signet/internal/model"
)

// Store is the slice of storage.DB that RecomputeAll needs. Defined here,
// rather than depended on directly, so this package stays independent of
// the storage driver.
type Store interface {
	List(ctx context.Context, filter model.MemoryFilter, limit, offset int) ([]model.Memory, error)
	UpdateStrength(ctx context.Context, id uuid.UUID, strength float64) error
}

var falseVal = false

// RecomputeAll walks every non-pinned, non-deleted memory in batches of
// batchSize, recomputing its strength and writing back only when the change
// is significant. It returns the number of rows actually updated.
func RecomputeAll(ctx context.Context, store Store, now time.Time, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 200
	}

	filter := model.MemoryFilter{Pinned: &falseVal}
	updated := 0
	offset := 0

	for {
		batch, err := store.List(ctx, filter, batchSize, offset)
		if err != nil {
			return updated, fmt.Errorf("temporal: list batch at offset %d: %w", offset, err)
		}
		if len(batch) == 0 {
			break
		}

		for _, m := range batch {
			newStrength := Strength(m, now)
			if !Changed(m.Strength, newStrength) {
				continue
			}
			if err := store.UpdateStrength(ctx, m.ID, newStrength); err != nil {
				return updated, fmt.Errorf("temporal: update strength for %s: %w", m.ID, err)
			}
			updated++
		}

		if len(batch) < batchSize {
			break
		}
		offset += batchSize
	}

	return updated, nil
}
