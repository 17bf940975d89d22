package merkle

import (
	"testing"

	"github.com/signet-ai/signet/internal/hashing"
)

func leafOf(s string) [32]byte {
	return hashing.LeafHash([]byte(s))
}

func TestRoot_EmptyTree(t *testing.T) {
	tree := Build(nil)
	if tree.Root() != hashing.EmptyRoot() {
		t.Fatal("expected empty tree root to equal the canonical empty root")
	}
	if tree.LeafCount() != 0 {
		t.Fatalf("expected 0 leaves, got %d", tree.LeafCount())
	}
}

func TestRoot_SingleLeafEqualsLeafHash(t *testing.T) {
	leaf := leafOf("a")
	tree := Build([][32]byte{leaf})
	if tree.Root() != leaf {
		t.Fatal("expected single-leaf tree's root to equal the leaf hash")
	}
}

func TestInclusionProof_RoundTripsForEveryIndex(t *testing.T) {
	leaves := [][32]byte{leafOf("A"), leafOf("B"), leafOf("C")}
	tree := Build(leaves)
	root := tree.Root()

	for i, leaf := range leaves {
		proof, err := GenerateProof(tree, i)
		if err != nil {
			t.Fatalf("GenerateProof(%d): %v", i, err)
		}
		if !VerifyProof(proof, leaf, root) {
			t.Fatalf("expected proof for index %d to verify", i)
		}
	}
}

func TestInclusionProof_CorruptedSiblingFailsVerification(t *testing.T) {
	leaves := [][32]byte{leafOf("A"), leafOf("B"), leafOf("C"), leafOf("D")}
	tree := Build(leaves)
	root := tree.Root()

	proof, err := GenerateProof(tree, 2)
	if err != nil {
		t.Fatalf("GenerateProof: %v", err)
	}
	if len(proof.Steps) == 0 {
		t.Fatal("expected a non-trivial proof for a 4-leaf tree")
	}
	proof.Steps[0].Hash[0] ^= 0xFF // flip a bit

	if VerifyProof(proof, leaves[2], root) {
		t.Fatal("expected corrupted proof to fail verification")
	}
}

func TestOddPromotion_DiffersFromDuplication(t *testing.T) {
	// [A,B,C] via promotion must NOT equal what duplicating C would produce.
	a, b, c := leafOf("A"), leafOf("B"), leafOf("C")
	rootPromoted := Build([][32]byte{a, b, c}).Root()
	rootDuplicated := Build([][32]byte{a, b, c, c}).Root()

	if rootPromoted == rootDuplicated {
		t.Fatal("expected odd-node promotion to produce a different root than duplicating the last leaf")
	}
}

func TestInclusionProof_LastLeafOfOddTreeHasShortProof(t *testing.T) {
	// S6: proof for index 2 of [h1,h2,h3] contains at most one step, because
	// h3 was promoted rather than paired at layer 0.
	leaves := [][32]byte{leafOf("h1"), leafOf("h2"), leafOf("h3")}
	tree := Build(leaves)

	proof, err := GenerateProof(tree, 2)
	if err != nil {
		t.Fatalf("GenerateProof: %v", err)
	}
	if len(proof.Steps) > 1 {
		t.Fatalf("expected at most one proof step for the promoted leaf, got %d", len(proof.Steps))
	}
	if !VerifyProof(proof, leaves[2], tree.Root()) {
		t.Fatal("expected promoted-leaf proof to verify")
	}

	dupRoot := Build([][32]byte{leaves[0], leaves[1], leaves[2], leaves[2]}).Root()
	if VerifyProof(proof, leaves[2], dupRoot) {
		t.Fatal("expected the promoted-tree proof to fail against the duplicated tree's root")
	}
}

func TestGenerateProof_OutOfRangeIndex(t *testing.T) {
	tree := Build([][32]byte{leafOf("A")})
	if _, err := GenerateProof(tree, 5); err == nil {
		t.Fatal("expected an error for an out-of-range leaf index")
	}
}

func TestGenerateProof_EmptyTree(t *testing.T) {
	tree := Build(nil)
	if _, err := GenerateProof(tree, 0); err == nil {
		t.Fatal("expected an error generating a proof against an empty tree")
	}
}
