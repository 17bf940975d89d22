package federation

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/signet-ai/signet/internal/did"
)

// verifyContentSignature checks a detached Ed25519 signature over content
// against the public key signerDID encodes. Used to decide whether an
// inbound memory's Verified flag can be set.
func verifyContentSignature(signerDID, content, signatureB64 string) error {
	pub, err := did.ToPublicKey(signerDID)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return fmt.Errorf("federation: decode content signature: %w", err)
	}
	if !ed25519.Verify(pub, []byte(content), sig) {
		return fmt.Errorf("federation: content signature does not verify")
	}
	return nil
}
