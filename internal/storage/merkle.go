package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/signet-ai/signet/internal/model"
)

// maxRetainedLeafHashes bounds how large a tree can be before its leaf
// hashes are dropped from the stored snapshot (the root and memory count
// alone are enough to verify proofs recomputed on demand).
const maxRetainedLeafHashes = 10_000

// InsertMerkleRoot persists a computed root snapshot.
func (db *DB) InsertMerkleRoot(ctx context.Context, root model.MerkleRoot) (uuid.UUID, error) {
	id := uuid.New()
	var leafHashesJSON *string
	if len(root.LeafHashes) > 0 && len(root.LeafHashes) <= maxRetainedLeafHashes {
		b, err := json.Marshal(root.LeafHashes)
		if err != nil {
			return uuid.UUID{}, fmt.Errorf("storage: marshal leaf hashes: %w", err)
		}
		s := string(b)
		leafHashesJSON = &s
	}

	_, err := db.writer.ExecContext(ctx, `
		INSERT INTO merkle_roots (id, root_hash, memory_count, leaf_hashes, computed_at, signature,
			anchor_chain, anchor_tx, anchor_block, anchor_timestamp)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		id.String(), root.RootHash, root.MemoryCount, leafHashesJSON,
		root.ComputedAt.UTC().Format(time.RFC3339Nano), root.Signature,
		root.AnchorChain, root.AnchorTx, root.AnchorBlock, formatOptionalTime(root.AnchorTimestamp),
	)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("storage: insert merkle root: %w", err)
	}
	return id, nil
}

// LatestMerkleRoot returns the most recently computed root snapshot.
func (db *DB) LatestMerkleRoot(ctx context.Context) (model.MerkleRoot, bool, error) {
	row := db.reader.QueryRowContext(ctx, `
		SELECT id, root_hash, memory_count, leaf_hashes, computed_at, signature,
			anchor_chain, anchor_tx, anchor_block, anchor_timestamp
		FROM merkle_roots ORDER BY computed_at DESC LIMIT 1`)

	var (
		r                                                 model.MerkleRoot
		idStr, computedAt                                 string
		leafHashes, signature, anchorChain, anchorTx, anchorTimestamp sql.NullString
		anchorBlock                                       sql.NullInt64
	)
	err := row.Scan(&idStr, &r.RootHash, &r.MemoryCount, &leafHashes, &computedAt, &signature,
		&anchorChain, &anchorTx, &anchorBlock, &anchorTimestamp)
	if err == sql.ErrNoRows {
		return model.MerkleRoot{}, false, nil
	}
	if err != nil {
		return model.MerkleRoot{}, false, fmt.Errorf("storage: latest merkle root: %w", err)
	}

	r.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.MerkleRoot{}, false, err
	}
	r.ComputedAt, err = time.Parse(time.RFC3339Nano, computedAt)
	if err != nil {
		return model.MerkleRoot{}, false, err
	}
	if leafHashes.Valid {
		if err := json.Unmarshal([]byte(leafHashes.String), &r.LeafHashes); err != nil {
			return model.MerkleRoot{}, false, err
		}
	}
	r.Signature = nullableString(signature)
	r.AnchorChain = nullableString(anchorChain)
	r.AnchorTx = nullableString(anchorTx)
	if anchorBlock.Valid {
		r.AnchorBlock = &anchorBlock.Int64
	}
	if anchorTimestamp.Valid {
		t, err := time.Parse(time.RFC3339Nano, anchorTimestamp.String)
		if err != nil {
			return model.MerkleRoot{}, false, err
		}
		r.AnchorTimestamp = &t
	}
	return r, true, nil
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}
