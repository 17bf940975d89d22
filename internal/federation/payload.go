package federation

import (
	"strings"
	"time"

	"github.com/signet-ai/signet/internal/signeterr"
)

// HandshakePayload opens a connection, proposing a challenge the responder
// must echo back (signed) in its HANDSHAKE_ACK, alongside a counter
// challenge of its own.
type HandshakePayload struct {
	Challenge   string `json:"challenge"` // 32 bytes, hex-encoded
	DisplayName string `json:"display_name,omitempty"`
}

// HandshakeAckPayload closes the loop: Challenge echoes the initiator's
// value (proving this reply is live, not replayed), CounterChallenge must
// be echoed back by the initiator in turn for mutual authentication.
type HandshakeAckPayload struct {
	Challenge        string `json:"challenge"`
	CounterChallenge string `json:"counter_challenge"`
	DisplayName      string `json:"display_name,omitempty"`
}

// WireMemory is the narrow, peer-facing projection of a memory: no local
// IDs, access counters, or strength — just the content a receiving peer
// can verify and decide whether to keep.
type WireMemory struct {
	Content    string    `json:"content"`
	Type       string    `json:"type"`
	Category   *string   `json:"category,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Importance float64   `json:"importance"`
	Signature  *string   `json:"signature,omitempty"`
	SignerDID  *string   `json:"signer_did,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SyncRequestPayload asks a peer for memories it has published since a
// given point. Since is nil on a peer's first sync. Limit defaults to 100.
type SyncRequestPayload struct {
	Since *time.Time `json:"since,omitempty"`
	Types []string   `json:"types,omitempty"`
	Limit int        `json:"limit,omitempty"`
}

// SyncResponsePayload answers a SyncRequestPayload. HasMore signals the
// requester should issue a follow-up SYNC_REQUEST with Since set to
// SyncedAt to page through the rest.
type SyncResponsePayload struct {
	Memories []WireMemory `json:"memories"`
	HasMore  bool         `json:"has_more"`
	SyncedAt time.Time    `json:"synced_at"`
}

// MemoryPushPayload proactively ships a single memory to a connected peer,
// outside the pull-based sync flow.
type MemoryPushPayload struct {
	Memory WireMemory `json:"memory"`
}

// MemoryAckPayload responds to a MEMORY_PUSH. Rejections are not retried
// without backoff — the pusher treats a rejection as final for that memory.
type MemoryAckPayload struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// ErrorPayload reports a protocol-level failure without closing the
// connection, e.g. rate limiting.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// wireCode renders a signeterr.Code in the upper-snake-case form the wire
// protocol documents (e.g. "bad_signature" -> "BAD_SIGNATURE"), distinct
// from signeterr's own lowercase internal representation.
func wireCode(code signeterr.Code) string {
	return strings.ToUpper(string(code))
}

// fromWireCode is wireCode's inverse, used when reconstructing a
// signeterr.Error from a received ERROR frame.
func fromWireCode(wire string) signeterr.Code {
	return signeterr.Code(strings.ToLower(wire))
}

// PingPayload and PongPayload carry no data; they exist purely so the
// keepalive frames round-trip through the same sign/verify path as
// everything else.
type PingPayload struct{}
type PongPayload struct{}
