package model

import (
	"time"

	"github.com/google/uuid"
)

// MerkleRoot is a periodic snapshot of the Merkle tree built over every
// non-deleted memory's content hash, in ascending content-hash order.
type MerkleRoot struct {
	ID          uuid.UUID `json:"id"`
	RootHash    string    `json:"root_hash"`
	MemoryCount int       `json:"memory_count"`
	LeafHashes  []string  `json:"leaf_hashes,omitempty"` // only retained for small trees
	ComputedAt  time.Time `json:"computed_at"`
	Signature   *string   `json:"signature,omitempty"`

	AnchorChain     *string    `json:"anchor_chain,omitempty"`
	AnchorTx        *string    `json:"anchor_tx,omitempty"`
	AnchorBlock     *int64     `json:"anchor_block,omitempty"`
	AnchorTimestamp *time.Time `json:"anchor_timestamp,omitempty"`
}
