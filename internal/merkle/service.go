package merkle

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/signet-ai/signet/internal/hashing"
	"github.com/signet-ai/signet/internal/model"
)

// Store is the slice of storage.DB the periodic root-building job needs.
type Store interface {
	LiveContentHashesAscending(ctx context.Context) ([]string, error)
	InsertMerkleRoot(ctx context.Context, root model.MerkleRoot) (uuid.UUID, error)
}

// Anchorer submits a root hash to external tamper-evident storage and
// reports back what it recorded there. Optional — BuildAndStore works fine
// with a nil Anchorer, it just has nothing external to point at.
type Anchorer interface {
	Anchor(ctx context.Context, rootHex string) (chain, tx string, err error)
}

// Signer produces a detached signature over arbitrary bytes.
type Signer interface {
	Sign(content []byte) []byte
}

// BuildAndStore hashes every live memory's content hash (in ascending
// order, per spec) into a tree, signs the root if signer is non-nil,
// anchors it externally if anchorer is non-nil, and stores it. Returns the
// computed root as a hex string.
func BuildAndStore(ctx context.Context, store Store, signer Signer, anchorer Anchorer) (string, error) {
	hashes, err := store.LiveContentHashesAscending(ctx)
	if err != nil {
		return "", fmt.Errorf("merkle: list content hashes: %w", err)
	}

	leaves := make([][32]byte, 0, len(hashes))
	for _, h := range hashes {
		raw, ok := hashing.ContentHashBytes(h)
		if !ok {
			continue // skip malformed hashes rather than fail the whole build
		}
		leaves = append(leaves, hashing.LeafHash(raw))
	}

	tree := Build(leaves)
	root := tree.Root()
	rootHex := hex.EncodeToString(root[:])

	record := model.MerkleRoot{
		RootHash:    rootHex,
		MemoryCount: tree.LeafCount(),
		ComputedAt:  time.Now().UTC(),
	}
	if signer != nil {
		sig := signer.Sign(root[:])
		enc := hex.EncodeToString(sig)
		record.Signature = &enc
	}
	if anchorer != nil {
		chain, tx, err := anchorer.Anchor(ctx, rootHex)
		if err != nil {
			// Anchoring is best-effort: the root is still valid and stored
			// locally even if the external chain is unreachable.
			chain, tx = "", ""
		}
		if chain != "" {
			record.AnchorChain = &chain
		}
		if tx != "" {
			record.AnchorTx = &tx
		}
	}

	if _, err := store.InsertMerkleRoot(ctx, record); err != nil {
		return "", fmt.Errorf("merkle: store root: %w", err)
	}

	return rootHex, nil
}
