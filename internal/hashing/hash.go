// Package hashing implements content normalization and the BLAKE2b-256
// domain-separated hashing used both for memory content hashes and for
// Merkle tree leaf/node hashes (internal/merkle).
package hashing

import (
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/unicode/norm"
)

// Domain-separation tags for Merkle tree hashing, preventing a leaf hash
// from ever being mistaken for an internal node hash (second-preimage
// confusion).
const (
	leafTag byte = 0x00
	nodeTag byte = 0x01
)

// Normalize collapses a content string to the canonical form its content
// hash is computed over: Unicode NFC, whitespace runs collapsed to a single
// space, leading/trailing whitespace trimmed, and lowercased. NFC runs first
// so that canonically-equivalent byte sequences (e.g. precomposed "é" vs.
// "e" + combining acute) normalize to the same content hash.
func Normalize(content string) string {
	content = norm.NFC.String(content)

	var b strings.Builder
	b.Grow(len(content))
	lastWasSpace := false
	for _, r := range strings.TrimSpace(content) {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				b.WriteByte(' ')
				lastWasSpace = true
			}
			continue
		}
		lastWasSpace = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// ContentHash returns the hex-encoded BLAKE2b-256 digest of the normalized
// content. This is the deduplication key for memories.
func ContentHash(content string) string {
	normalized := Normalize(content)
	sum := blake2b.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// LeafHash computes a domain-separated Merkle leaf hash from a content
// hash's raw bytes: BLAKE2b-256(0x00 ‖ contentHash).
func LeafHash(contentHash []byte) [32]byte {
	buf := make([]byte, 1+len(contentHash))
	buf[0] = leafTag
	copy(buf[1:], contentHash)
	return blake2b.Sum256(buf)
}

// NodeHash computes a domain-separated Merkle internal node hash:
// BLAKE2b-256(0x01 ‖ left ‖ right).
func NodeHash(left, right [32]byte) [32]byte {
	buf := make([]byte, 1+32+32)
	buf[0] = nodeTag
	copy(buf[1:33], left[:])
	copy(buf[33:], right[:])
	return blake2b.Sum256(buf)
}

// EmptyRoot is the canonical root of a zero-leaf Merkle tree:
// BLAKE2b-256("").
func EmptyRoot() [32]byte {
	return blake2b.Sum256(nil)
}

// ContentHashBytes decodes a hex-encoded content hash into raw bytes,
// returning ok=false if it is not valid hex.
func ContentHashBytes(hexHash string) ([]byte, bool) {
	b, err := hex.DecodeString(hexHash)
	return b, err == nil
}
