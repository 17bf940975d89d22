// Package merkle builds Merkle trees over memory content hashes and
// generates/verifies inclusion proofs. Odd trailing nodes are promoted to
// the next layer rather than duplicated: duplicating the last node would
// make [A,B,C] and [A,B,C,C] produce the same root, a phantom-inclusion
// collision that promotion avoids.
package merkle

import (
	"crypto/subtle"

	"github.com/signet-ai/signet/internal/hashing"
	"github.com/signet-ai/signet/internal/signeterr"
)

// Tree is an immutable, built Merkle tree. Use Build to construct one.
type Tree struct {
	levels [][][32]byte // levels[0] = leaves, levels[len-1] = [root]
}

// Build constructs a tree from already domain-separated leaf hashes
// (see hashing.LeafHash). Leaves must be supplied in the caller's chosen
// deterministic order; Build does not sort them.
func Build(leafHashes [][32]byte) *Tree {
	if len(leafHashes) == 0 {
		return &Tree{levels: nil}
	}

	level := make([][32]byte, len(leafHashes))
	copy(level, leafHashes)
	levels := [][][32]byte{level}

	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashing.NodeHash(level[i], level[i+1]))
			} else {
				next = append(next, level[i]) // promote, not duplicate
			}
		}
		levels = append(levels, next)
		level = next
	}

	return &Tree{levels: levels}
}

// Root returns the tree's root hash. The empty tree's root is the
// canonical empty-root constant; a one-leaf tree's root is that leaf.
func (t *Tree) Root() [32]byte {
	if len(t.levels) == 0 {
		return hashing.EmptyRoot()
	}
	last := t.levels[len(t.levels)-1]
	return last[0]
}

// LeafCount returns the number of leaves the tree was built from.
func (t *Tree) LeafCount() int {
	if len(t.levels) == 0 {
		return 0
	}
	return len(t.levels[0])
}

// Position marks which side of a hash pair a proof step's sibling sits on.
type Position string

const (
	Left  Position = "left"
	Right Position = "right"
)

// ProofStep is one sibling hash encountered while climbing from a leaf to
// the root. A promoted node (one with no sibling at its level) contributes
// no step.
type ProofStep struct {
	Hash     [32]byte
	Position Position
}

// Proof is the ordered (bottom-to-top) list of sibling hashes needed to
// recompute the root from a given leaf.
type Proof struct {
	Steps []ProofStep
}

// GenerateProof builds an inclusion proof for the leaf at index.
func GenerateProof(t *Tree, index int) (Proof, error) {
	if len(t.levels) == 0 {
		return Proof{}, signeterr.New(signeterr.NotFound, "cannot prove inclusion in an empty tree")
	}
	leaves := t.levels[0]
	if index < 0 || index >= len(leaves) {
		return Proof{}, signeterr.Newf(signeterr.NotFound, "leaf index %d out of range [0,%d)", index, len(leaves))
	}

	var steps []ProofStep
	idx := index
	for level := 0; level < len(t.levels)-1; level++ {
		current := t.levels[level]
		n := len(current)
		if idx%2 == 0 {
			if idx+1 < n {
				steps = append(steps, ProofStep{Hash: current[idx+1], Position: Right})
			}
			// else: this node was promoted; it contributes no step.
		} else {
			steps = append(steps, ProofStep{Hash: current[idx-1], Position: Left})
		}
		idx /= 2
	}
	return Proof{Steps: steps}, nil
}

// VerifyProof recomputes the root from leaf and proof, and reports whether
// it matches root using a constant-time comparison.
func VerifyProof(proof Proof, leaf [32]byte, root [32]byte) bool {
	cur := leaf
	for _, step := range proof.Steps {
		switch step.Position {
		case Right:
			cur = hashing.NodeHash(cur, step.Hash)
		case Left:
			cur = hashing.NodeHash(step.Hash, cur)
		default:
			return false
		}
	}
	return subtle.ConstantTimeCompare(cur[:], root[:]) == 1
}
