package export_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/signet-ai/signet/internal/export"
	"github.com/signet-ai/signet/internal/model"
	"github.com/signet-ai/signet/internal/testutil"
)

func bundleOf(memories ...model.Memory) *export.Bundle {
	data := export.Data{Memories: memories, Decisions: []model.Decision{}, Entities: []model.Entity{}, Relations: []model.Relation{}}
	checksum, err := export.Checksum(data)
	if err != nil {
		panic(err)
	}
	return &export.Bundle{
		Metadata: export.Metadata{
			Version:  export.FormatVersion,
			Format:   export.Format,
			Checksum: checksum,
		},
		Data: data,
	}
}

func TestImport_SkipExistingLeavesLocalRecordUntouched(t *testing.T) {
	db := testutil.OpenDB(t)
	seedMemories(t, db, "local fact")

	local, err := db.List(context.Background(), model.MemoryFilter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, local, 1)

	incoming := local[0]
	incoming.Content = "this must not land"

	b := bundleOf(incoming)
	res, err := export.Import(context.Background(), db, b, export.MergeSkipExisting, export.VerifyOptions{SkipSignature: true})
	require.NoError(t, err)
	require.Equal(t, 0, res.MemoriesImported)
	require.Equal(t, 1, res.MemoriesSkipped)

	got, err := db.Get(context.Background(), local[0].ID)
	require.NoError(t, err)
	require.Equal(t, "local fact", got.Content)
}

func TestImport_ReplaceOverwritesMatchingContentHash(t *testing.T) {
	db := testutil.OpenDB(t)
	seedMemories(t, db, "replace me")

	local, err := db.List(context.Background(), model.MemoryFilter{}, 10, 0)
	require.NoError(t, err)

	incoming := local[0]
	incoming.Importance = 0.9
	incoming.UpdatedAt = time.Now().UTC()

	b := bundleOf(incoming)
	res, err := export.Import(context.Background(), db, b, export.MergeReplace, export.VerifyOptions{SkipSignature: true})
	require.NoError(t, err)
	require.Equal(t, 1, res.MemoriesImported)

	got, err := db.Get(context.Background(), local[0].ID)
	require.NoError(t, err)
	require.InDelta(t, 0.9, got.Importance, 0.0001)
}

func TestImport_NewMemoryAlwaysLands(t *testing.T) {
	db := testutil.OpenDB(t)

	incoming := model.Memory{
		ID:                uuid.New(),
		ContentHash:       "deadbeef",
		Content:           "brand new",
		NormalizedContent: "brand new",
		Type:              model.MemoryTypeFact,
		Confidence:        1,
		Importance:        0.5,
		Strength:          1,
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	b := bundleOf(incoming)

	res, err := export.Import(context.Background(), db, b, export.MergeSkipExisting, export.VerifyOptions{SkipSignature: true})
	require.NoError(t, err)
	require.Equal(t, 1, res.MemoriesImported)

	got, err := db.Get(context.Background(), incoming.ID)
	require.NoError(t, err)
	require.Equal(t, "brand new", got.Content)
}

func TestImport_RejectsTamperedChecksum(t *testing.T) {
	db := testutil.OpenDB(t)
	b := bundleOf()
	b.Metadata.Checksum = "not-the-real-checksum"

	_, err := export.Import(context.Background(), db, b, export.MergeSkipExisting, export.VerifyOptions{SkipSignature: true})
	require.Error(t, err)
}
