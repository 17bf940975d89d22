// Package did implements the did:key method for Ed25519 public keys, the
// identity format Signet peers use to address and verify each other.
package did

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/signet-ai/signet/internal/signeterr"
)

const (
	prefix = "did:key:z"

	// multicodec varint prefix for Ed25519 public keys (0xed01, the
	// two-byte form used by did:key).
	codecByte0 = 0xed
	codecByte1 = 0x01
)

// FromPublicKey encodes an Ed25519 public key as a did:key identifier:
// "did:key:z" followed by base58btc(0xed 0x01 ‖ public_key).
func FromPublicKey(pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", signeterr.Newf(signeterr.InvalidDid, "public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	buf := make([]byte, 2+ed25519.PublicKeySize)
	buf[0] = codecByte0
	buf[1] = codecByte1
	copy(buf[2:], pub)
	return prefix + base58.Encode(buf), nil
}

// ToPublicKey decodes a did:key identifier back into its Ed25519 public key.
// It validates the "did:key:z" prefix, the multicodec bytes, and the
// decoded length, per the spec's DID round-trip property.
func ToPublicKey(id string) (ed25519.PublicKey, error) {
	if !strings.HasPrefix(id, prefix) {
		return nil, signeterr.Newf(signeterr.InvalidDid, "missing %q prefix", prefix)
	}
	encoded := strings.TrimPrefix(id, prefix)
	decoded, err := base58.Decode(encoded)
	if err != nil {
		return nil, signeterr.Wrap(signeterr.InvalidDid, fmt.Errorf("base58 decode: %w", err))
	}
	if len(decoded) != 2+ed25519.PublicKeySize {
		return nil, signeterr.Newf(signeterr.InvalidDid, "decoded length %d, want %d", len(decoded), 2+ed25519.PublicKeySize)
	}
	if decoded[0] != codecByte0 || decoded[1] != codecByte1 {
		return nil, signeterr.Newf(signeterr.InvalidDid, "unexpected multicodec bytes %02x%02x, want ed01", decoded[0], decoded[1])
	}
	pub := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(pub, decoded[2:])
	return pub, nil
}

// Valid reports whether id is a well-formed did:key Ed25519 identifier.
func Valid(id string) bool {
	_, err := ToPublicKey(id)
	return err == nil
}

// Document is a minimal W3C DID Document for a did:key identity, written to
// did.json on disk (spec.md §6).
type Document struct {
	Context            []string             `json:"@context"`
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Authentication     []string             `json:"authentication"`
	AssertionMethod     []string            `json:"assertionMethod"`
}

// VerificationMethod describes the single Ed25519 key backing the DID.
type VerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller"`
	PublicKeyMultibase string `json:"publicKeyMultibase"`
}

// NewDocument builds the DID Document for a given did:key identifier.
func NewDocument(id string) Document {
	vmID := id + "#" + strings.TrimPrefix(id, prefix)
	multibase := strings.TrimPrefix(id, "did:key:")
	return Document{
		Context: []string{
			"https://www.w3.org/ns/did/v1",
			"https://w3id.org/security/suites/ed25519-2020/v1",
		},
		ID: id,
		VerificationMethod: []VerificationMethod{{
			ID:                 vmID,
			Type:               "Ed25519VerificationKey2020",
			Controller:         id,
			PublicKeyMultibase: multibase,
		}},
		Authentication:  []string{vmID},
		AssertionMethod: []string{vmID},
	}
}
