package did

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
)

func TestFromPublicKey_ToPublicKey_RoundTrips(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	id, err := FromPublicKey(pub)
	require.NoError(t, err)
	require.True(t, Valid(id))

	decoded, err := ToPublicKey(id)
	require.NoError(t, err)
	require.Equal(t, pub, decoded)
}

func TestToPublicKey_RejectsMissingPrefix(t *testing.T) {
	_, err := ToPublicKey("did:web:example.com")
	require.Error(t, err)
}

func TestToPublicKey_RejectsWrongMulticodec(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	id, err := FromPublicKey(pub)
	require.NoError(t, err)

	// Re-encode the same key under a different multicodec prefix.
	raw, err := base58.Decode(strings.TrimPrefix(id, "did:key:z"))
	require.NoError(t, err)
	raw[0], raw[1] = 0xe7, 0x01
	wrong := "did:key:z" + base58.Encode(raw)
	require.False(t, Valid(wrong))
	_, err = ToPublicKey(wrong)
	require.Error(t, err)
}

func TestNewDocument_SetsVerificationMethod(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	id, err := FromPublicKey(pub)
	require.NoError(t, err)

	doc := NewDocument(id)
	require.Equal(t, id, doc.ID)
	require.Len(t, doc.VerificationMethod, 1)
	require.Equal(t, id, doc.VerificationMethod[0].Controller)
}
