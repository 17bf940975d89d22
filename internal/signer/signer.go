// Package signer produces and verifies Ed25519 detached signatures and
// exposes the signer's public key and DID. It is the thinnest layer in the
// module: all key custody lives in internal/keyvault.
package signer

import (
	"crypto/ed25519"

	"github.com/signet-ai/signet/internal/did"
	"github.com/signet-ai/signet/internal/signeterr"
)

// Signer holds a loaded Ed25519 keypair and signs/verifies bytes with it.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	did  string
}

// New wraps a keypair already loaded by KeyVault. It does not itself touch
// disk or derive any master key.
func New(priv ed25519.PrivateKey, pub ed25519.PublicKey) (*Signer, error) {
	d, err := did.FromPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return &Signer{priv: priv, pub: pub, did: d}, nil
}

// PublicKey returns the signer's Ed25519 public key.
func (s *Signer) PublicKey() ed25519.PublicKey { return s.pub }

// DID returns the signer's did:key identifier.
func (s *Signer) DID() string { return s.did }

// Sign produces a detached Ed25519 signature over content.
func (s *Signer) Sign(content []byte) []byte {
	return ed25519.Sign(s.priv, content)
}

// Verify checks a detached signature against content using this signer's
// own public key.
func (s *Signer) Verify(content, signature []byte) bool {
	return ed25519.Verify(s.pub, content, signature)
}

// VerifyWithKey checks a detached signature against content using an
// arbitrary public key, for verifying frames from remote peers.
func VerifyWithKey(pub ed25519.PublicKey, content, signature []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, content, signature)
}

// VerifyDID checks a detached signature against content using the public
// key encoded in a did:key identifier. Returns InvalidDid if id is
// malformed, BadSignature if the signature does not verify.
func VerifyDID(id string, content, signature []byte) error {
	pub, err := did.ToPublicKey(id)
	if err != nil {
		return err
	}
	if !ed25519.Verify(pub, content, signature) {
		return signeterr.New(signeterr.BadSignature, "signature does not verify against did-encoded public key")
	}
	return nil
}
