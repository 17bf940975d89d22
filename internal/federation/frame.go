// Package federation implements the peer-to-peer WebSocket protocol agents
// use to exchange memories: signed frames, a challenge/response handshake,
// trust-gated sync and push, per-connection rate limiting, and a
// reconnecting client.
package federation

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/signet-ai/signet/internal/did"
	"github.com/signet-ai/signet/internal/signeterr"
)

// FrameType identifies the kind of message carried by a Frame.
type FrameType string

const (
	FrameHandshake    FrameType = "HANDSHAKE"
	FrameHandshakeAck FrameType = "HANDSHAKE_ACK"
	FrameSyncRequest  FrameType = "SYNC_REQUEST"
	FrameSyncResponse FrameType = "SYNC_RESPONSE"
	FrameMemoryPush   FrameType = "MEMORY_PUSH"
	FrameMemoryAck    FrameType = "MEMORY_ACK"
	FramePing         FrameType = "PING"
	FramePong         FrameType = "PONG"
	FrameError        FrameType = "ERROR"
)

func validFrameType(t FrameType) bool {
	switch t {
	case FrameHandshake, FrameHandshakeAck, FrameSyncRequest, FrameSyncResponse,
		FrameMemoryPush, FrameMemoryAck, FramePing, FramePong, FrameError:
		return true
	default:
		return false
	}
}

// Frame is the signed envelope every federation message travels in. ID
// correlates requests with their responses (sync, push, ping) within a
// single connection; it is not part of the signed payload.
type Frame struct {
	ID        string          `json:"id,omitempty"`
	Type      FrameType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Signature string          `json:"signature"`
	SenderDID string          `json:"sender_did"`
}

// signable is the fixed field subset that gets signed, in this exact field
// order. Keeping it a separate type (rather than signing Frame itself)
// means adding fields to Frame later — ID, for instance — never changes
// what prior signatures covered.
type signable struct {
	Type      FrameType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

func canonicalSignable(f Frame) ([]byte, error) {
	b, err := json.Marshal(signable{Type: f.Type, Payload: f.Payload, Timestamp: f.Timestamp})
	if err != nil {
		return nil, fmt.Errorf("federation: marshal signable frame: %w", err)
	}
	return b, nil
}

// newFrame builds and signs a frame of the given type with the current
// timestamp, using priv to sign and senderDID as the claimed identity.
func newFrame(typ FrameType, payload any, priv ed25519.PrivateKey, senderDID string) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("federation: marshal %s payload: %w", typ, err)
	}
	f := Frame{
		Type:      typ,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
		SenderDID: senderDID,
	}
	signBytes, err := canonicalSignable(f)
	if err != nil {
		return Frame{}, err
	}
	f.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(priv, signBytes))
	return f, nil
}

// verifyFrame checks that f is well-formed, unexpired, and signed by the
// key its sender_did encodes. replayWindow bounds how far f.Timestamp may
// drift from now in either direction.
func verifyFrame(f Frame, replayWindow time.Duration) error {
	if !validFrameType(f.Type) {
		return signeterr.Newf(signeterr.MalformedFrame, "unrecognized frame type %q", f.Type)
	}
	if f.Signature == "" {
		return signeterr.New(signeterr.MalformedFrame, "frame missing signature")
	}
	if f.SenderDID == "" {
		return signeterr.New(signeterr.MalformedFrame, "frame missing sender_did")
	}
	if !did.Valid(f.SenderDID) {
		return signeterr.Newf(signeterr.InvalidDid, "malformed sender_did %q", f.SenderDID)
	}

	age := time.Since(f.Timestamp)
	if age > replayWindow || age < -replayWindow {
		return signeterr.Newf(signeterr.ReplayWindow, "frame timestamp %s outside replay window of %s", f.Timestamp, replayWindow)
	}

	pub, err := did.ToPublicKey(f.SenderDID)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(f.Signature)
	if err != nil {
		return signeterr.Wrap(signeterr.BadSignature, fmt.Errorf("decode signature: %w", err))
	}
	signBytes, err := canonicalSignable(f)
	if err != nil {
		return err
	}
	if !ed25519.Verify(pub, signBytes, sig) {
		return signeterr.New(signeterr.BadSignature, "frame signature does not verify")
	}
	return nil
}

// decodePayload unmarshals f.Payload into v, wrapping the error as a
// malformed frame rather than a bare JSON error.
func decodePayload(f Frame, v any) error {
	if len(f.Payload) == 0 {
		return signeterr.New(signeterr.MalformedFrame, "frame has no payload")
	}
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return signeterr.Wrap(signeterr.MalformedFrame, err)
	}
	return nil
}
