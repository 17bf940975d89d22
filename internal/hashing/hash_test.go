package hashing

import "testing"

func TestNormalize_CollapsesWhitespaceAndCase(t *testing.T) {
	a := Normalize("API   runs on\tport 3000")
	b := Normalize("api runs on port 3000")
	if a != b {
		t.Fatalf("expected equal normalization, got %q vs %q", a, b)
	}
}

func TestNormalize_CollapsesUnicodeNFCForms(t *testing.T) {
	precomposed := Normalize("Café")  // e-acute as a single code point
	decomposed := Normalize("Café")  // e followed by a combining acute accent
	if precomposed != decomposed {
		t.Fatalf("expected NFC-equivalent strings to normalize equally, got %q vs %q", precomposed, decomposed)
	}
}

func TestContentHash_StableUnderWhitespaceAndCaseChanges(t *testing.T) {
	h1 := ContentHash("Hello   World")
	h2 := ContentHash("hello world")
	if h1 != h2 {
		t.Fatalf("expected equal content hashes, got %s vs %s", h1, h2)
	}
}

func TestContentHash_DiffersForDifferentContent(t *testing.T) {
	if ContentHash("a") == ContentHash("b") {
		t.Fatal("expected different content to hash differently")
	}
}

func TestLeafHash_DomainSeparatedFromNodeHash(t *testing.T) {
	raw := []byte{1, 2, 3}
	var a, b [32]byte
	copy(a[:], raw)
	copy(b[:], raw)

	leaf := LeafHash(raw)
	node := NodeHash(a, b)
	if leaf == node {
		t.Fatal("expected leaf and node hashes to differ under domain separation")
	}
}

func TestEmptyRoot_IsDeterministic(t *testing.T) {
	if EmptyRoot() != EmptyRoot() {
		t.Fatal("expected EmptyRoot to be deterministic")
	}
}
