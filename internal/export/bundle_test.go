package export_test

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/signet-ai/signet/internal/export"
	"github.com/signet-ai/signet/internal/model"
	"github.com/signet-ai/signet/internal/signeterr"
	"github.com/signet-ai/signet/internal/testutil"
)

func seedMemories(t *testing.T, db interface {
	InsertMemory(ctx context.Context, in model.NewMemoryInput, signFn func([]byte) (string, string, error)) (model.InsertResult, error)
}, contents ...string) {
	t.Helper()
	for _, c := range contents {
		_, err := db.InsertMemory(context.Background(), model.NewMemoryInput{
			Content:    c,
			Type:       model.MemoryTypeFact,
			Confidence: 1,
			Importance: 0.5,
		}, nil)
		require.NoError(t, err)
	}
}

func TestBuild_RoundTripsThroughMarshalAndUnmarshal(t *testing.T) {
	db := testutil.OpenDB(t)
	seedMemories(t, db, "first fact", "second fact")

	b, err := export.Build(context.Background(), db, export.BuildOptions{})
	require.NoError(t, err)
	require.Len(t, b.Data.Memories, 2)
	require.Equal(t, 2, b.Metadata.Counts.Memories)

	gz, err := b.Marshal()
	require.NoError(t, err)

	loaded, err := export.Unmarshal(gz)
	require.NoError(t, err)
	require.Equal(t, b.Metadata.Checksum, loaded.Metadata.Checksum)
	require.NoError(t, loaded.VerifyChecksum())
}

func TestBuild_SignsWhenSignerSupplied(t *testing.T) {
	db := testutil.OpenDB(t)
	seedMemories(t, db, "signed fact")

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	b, err := export.Build(context.Background(), db, export.BuildOptions{
		SignerDID: "did:key:ztest",
		PublicKey: pub,
		SignFn: func(msg []byte) ([]byte, error) {
			return ed25519.Sign(priv, msg), nil
		},
	})
	require.NoError(t, err)
	require.NotNil(t, b.Metadata.Signature)
	require.NoError(t, b.VerifySignature())
}

func TestVerifyChecksum_RejectsTamperedData(t *testing.T) {
	db := testutil.OpenDB(t)
	seedMemories(t, db, "tamper target")

	b, err := export.Build(context.Background(), db, export.BuildOptions{})
	require.NoError(t, err)

	b.Data.Memories[0].Content = "mutated after checksum"
	require.Error(t, b.VerifyChecksum())
}

func TestVerifySignature_FailsWithoutPublicKeyOrDID(t *testing.T) {
	db := testutil.OpenDB(t)
	seedMemories(t, db, "unsigned fact")

	b, err := export.Build(context.Background(), db, export.BuildOptions{})
	require.NoError(t, err)

	// Attach a well-formed signature so the failure comes from the missing
	// public key and DID, not from the bundle being unsigned.
	sig := "AAAA"
	b.Metadata.Signature = &sig
	err = b.VerifySignature()
	require.Error(t, err)
	require.True(t, signeterr.Is(err, signeterr.KeyNotFound))
}
