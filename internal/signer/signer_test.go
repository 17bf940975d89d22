package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	s, err := New(priv, pub)
	require.NoError(t, err)
	return s
}

func TestSignVerify_RoundTrips(t *testing.T) {
	s := newTestSigner(t)
	content := []byte("API runs on port 3000")
	sig := s.Sign(content)
	require.True(t, s.Verify(content, sig))
}

func TestVerify_FailsOnFlippedContentByte(t *testing.T) {
	s := newTestSigner(t)
	content := []byte("API runs on port 3000")
	sig := s.Sign(content)

	tampered := append([]byte(nil), content...)
	tampered[0] ^= 0xFF
	require.False(t, s.Verify(tampered, sig))
}

func TestVerify_FailsOnFlippedSignatureByte(t *testing.T) {
	s := newTestSigner(t)
	content := []byte("API runs on port 3000")
	sig := s.Sign(content)
	sig[0] ^= 0xFF
	require.False(t, s.Verify(content, sig))
}

func TestVerifyDID_RejectsMalformedDID(t *testing.T) {
	err := VerifyDID("not-a-did", []byte("x"), []byte("y"))
	require.Error(t, err)
}

func TestVerifyDID_AcceptsValidSignature(t *testing.T) {
	s := newTestSigner(t)
	content := []byte("hello")
	sig := s.Sign(content)
	require.NoError(t, VerifyDID(s.DID(), content, sig))
}
