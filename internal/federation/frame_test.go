package federation

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/signet-ai/signet/internal/did"
)

func genIdentity(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	d, err := did.FromPublicKey(pub)
	require.NoError(t, err)
	return pub, priv, d
}

func TestNewFrame_VerifyRoundTrips(t *testing.T) {
	_, priv, d := genIdentity(t)

	f, err := newFrame(FramePing, PingPayload{}, priv, d)
	require.NoError(t, err)
	require.NoError(t, verifyFrame(f, 5*time.Minute))
}

func TestVerifyFrame_RejectsTamperedPayload(t *testing.T) {
	_, priv, d := genIdentity(t)

	f, err := newFrame(FrameHandshake, HandshakePayload{Challenge: "abc"}, priv, d)
	require.NoError(t, err)

	f.Payload = []byte(`{"challenge":"tampered"}`)
	require.Error(t, verifyFrame(f, 5*time.Minute))
}

func TestVerifyFrame_RejectsExpiredTimestamp(t *testing.T) {
	_, priv, d := genIdentity(t)

	f, err := newFrame(FramePing, PingPayload{}, priv, d)
	require.NoError(t, err)
	f.Timestamp = time.Now().Add(-time.Hour)

	// The signature no longer covers the mutated timestamp either, but even
	// if it somehow did, the replay window check must still reject it.
	require.Error(t, verifyFrame(f, 5*time.Minute))
}

func TestVerifyFrame_RejectsUnknownSenderIdentity(t *testing.T) {
	_, priv, _ := genIdentity(t)
	_, _, otherDID := genIdentity(t)

	f, err := newFrame(FramePing, PingPayload{}, priv, otherDID)
	require.NoError(t, err)
	require.Error(t, verifyFrame(f, 5*time.Minute))
}

func TestVerifyFrame_RejectsMalformedSenderDID(t *testing.T) {
	_, priv, d := genIdentity(t)
	f, err := newFrame(FramePing, PingPayload{}, priv, d)
	require.NoError(t, err)

	f.SenderDID = "did:web:not-a-key-did"
	require.Error(t, verifyFrame(f, 5*time.Minute))
}

func TestVerifyFrame_RejectsUnrecognizedType(t *testing.T) {
	_, priv, d := genIdentity(t)
	f, err := newFrame(FramePing, PingPayload{}, priv, d)
	require.NoError(t, err)
	f.Type = "BOGUS"

	require.Error(t, verifyFrame(f, 5*time.Minute))
}
