package model

import (
	"time"

	"github.com/google/uuid"
)

// TrustLevel gates what a peer is permitted to do over the federation
// protocol. Transitions are explicit local operations; the protocol never
// escalates trust on its own.
type TrustLevel string

const (
	TrustPending TrustLevel = "pending"
	TrustTrusted TrustLevel = "trusted"
	TrustBlocked TrustLevel = "blocked"
)

// Peer is a remote agent this daemon has exchanged (or attempted to
// exchange) a handshake with.
type Peer struct {
	ID          uuid.UUID  `json:"id"`
	DID         string     `json:"did"`
	DisplayName *string    `json:"display_name,omitempty"`
	ChainAddr   *string    `json:"chain_address,omitempty"`
	Address     *string    `json:"address,omitempty"` // ws(s):// URL for outbound dialing
	TrustLevel  TrustLevel `json:"trust_level"`
	LastSync    *time.Time `json:"last_sync,omitempty"`
	SyncCount   int        `json:"sync_count"`
	PushCount   int        `json:"push_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// SharedMemory records that a given memory has already been shipped to a
// given peer, so repeat SYNC_REQUESTs don't resend it.
type SharedMemory struct {
	MemoryID uuid.UUID `json:"memory_id"`
	PeerID   uuid.UUID `json:"peer_id"`
	SharedAt time.Time `json:"shared_at"`
}

// ReceivedMemory is a memory pulled or pushed in from a peer. It never
// auto-promotes into the local memories table; promotion is an explicit
// operator action (see Store.PromoteReceivedMemory).
type ReceivedMemory struct {
	ID              uuid.UUID `json:"id"`
	PeerID          uuid.UUID `json:"peer_id"`
	OriginalContent string    `json:"original_content"`
	Signature       *string   `json:"signature,omitempty"`
	SignerDID       *string   `json:"signer_did,omitempty"`
	Verified        bool      `json:"verified"`
	Promoted        bool      `json:"promoted"`
	PromotedMemoryID *uuid.UUID `json:"promoted_memory_id,omitempty"`
	ReceivedAt      time.Time `json:"received_at"`
}

// PublishRule is a declarative filter deciding which local memories may be
// shared with which peers.
type PublishRule struct {
	ID            uuid.UUID   `json:"id"`
	Name          string      `json:"name"`
	Query         *string     `json:"query,omitempty"` // substring filter over content
	Tags          []string    `json:"tags,omitempty"`  // match any
	Types         []MemoryType `json:"types,omitempty"` // match any
	MinImportance float64     `json:"min_importance"`
	PeerIDs       []uuid.UUID `json:"peer_ids,omitempty"` // nil = all trusted peers
	AutoPublish   bool        `json:"auto_publish"`
	CreatedAt     time.Time   `json:"created_at"`
}

// MatchesPeer reports whether rule applies to the given peer.
func (r PublishRule) MatchesPeer(peerID uuid.UUID) bool {
	if len(r.PeerIDs) == 0 {
		return true
	}
	for _, id := range r.PeerIDs {
		if id == peerID {
			return true
		}
	}
	return false
}
