package federation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/signet-ai/signet/internal/model"
)

// defaultSyncLimit is used when a SYNC_REQUEST doesn't specify one.
const defaultSyncLimit = 100

// Store is the slice of storage.DB the federation layer needs. Kept
// narrow and local to this package, the same way internal/temporal
// defines its own Store rather than importing internal/storage directly.
type Store interface {
	SelectPublishable(ctx context.Context, peerID uuid.UUID, since *time.Time, types []model.MemoryType, limit int) ([]model.Memory, error)
	MarkShared(ctx context.Context, memoryID, peerID uuid.UUID) error
	InsertReceivedMemory(ctx context.Context, rm model.ReceivedMemory) (uuid.UUID, bool, error)
	PeerByDID(ctx context.Context, did string) (model.Peer, error)
	RecordSync(ctx context.Context, id uuid.UUID) error
	RecordPush(ctx context.Context, id uuid.UUID) error
}

// StoreHandler implements Handler against a Store, turning SYNC_REQUEST and
// MEMORY_PUSH frames into selective-publish reads and received-memory
// writes respectively.
type StoreHandler struct {
	store  Store
	logger *slog.Logger
}

// NewStoreHandler builds a Handler backed by store.
func NewStoreHandler(store Store, logger *slog.Logger) *StoreHandler {
	return &StoreHandler{store: store, logger: logger}
}

func toWireMemory(m model.Memory) WireMemory {
	return WireMemory{
		Content:    m.Content,
		Type:       string(m.Type),
		Category:   m.Category,
		Tags:       m.Tags,
		Importance: m.Importance,
		Signature:  m.Signature,
		SignerDID:  m.SignerDID,
		CreatedAt:  m.CreatedAt,
	}
}

// HandleSyncRequest serves a peer's SYNC_REQUEST from publish-rule-filtered
// memories, marking each returned memory shared so the next request (with
// Since advanced) doesn't resend it.
func (h *StoreHandler) HandleSyncRequest(ctx context.Context, peerDID string, req SyncRequestPayload) (SyncResponsePayload, error) {
	peer, err := h.store.PeerByDID(ctx, peerDID)
	if err != nil {
		return SyncResponsePayload{}, fmt.Errorf("federation: sync request from unknown peer %s: %w", peerDID, err)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultSyncLimit
	}
	var types []model.MemoryType
	for _, t := range req.Types {
		types = append(types, model.MemoryType(t))
	}

	// Over-fetch by one to detect whether more remain beyond this page.
	candidates, err := h.store.SelectPublishable(ctx, peer.ID, req.Since, types, limit+1)
	if err != nil {
		return SyncResponsePayload{}, fmt.Errorf("federation: select publishable: %w", err)
	}

	hasMore := len(candidates) > limit
	if hasMore {
		candidates = candidates[:limit]
	}

	memories := make([]WireMemory, 0, len(candidates))
	for _, m := range candidates {
		if err := h.store.MarkShared(ctx, m.ID, peer.ID); err != nil {
			h.logger.Warn("federation: mark shared failed", "memory_id", m.ID, "peer", peerDID, "error", err)
			continue
		}
		memories = append(memories, toWireMemory(m))
	}

	if err := h.store.RecordSync(ctx, peer.ID); err != nil {
		h.logger.Warn("federation: record sync failed", "peer", peerDID, "error", err)
	}

	return SyncResponsePayload{
		Memories: memories,
		HasMore:  hasMore,
		SyncedAt: time.Now().UTC(),
	}, nil
}

// HandlePush ingests a single pushed memory into received_memories,
// deduplicated on (peer, content). It never writes to the memories table
// directly — promotion stays an explicit operator action.
func (h *StoreHandler) HandlePush(ctx context.Context, peerDID string, push MemoryPushPayload) (MemoryAckPayload, error) {
	peer, err := h.store.PeerByDID(ctx, peerDID)
	if err != nil {
		return MemoryAckPayload{Accepted: false, Reason: "unknown peer"}, nil
	}

	_, inserted, err := ingestWireMemory(ctx, h.store, peer.ID, push.Memory)
	if err != nil {
		return MemoryAckPayload{Accepted: false, Reason: err.Error()}, nil
	}
	if !inserted {
		return MemoryAckPayload{Accepted: false, Reason: "duplicate"}, nil
	}

	if err := h.store.RecordPush(ctx, peer.ID); err != nil {
		h.logger.Warn("federation: record push failed", "peer", peerDID, "error", err)
	}
	return MemoryAckPayload{Accepted: true}, nil
}

// ProcessSyncResponse ingests every memory in a SYNC_RESPONSE, the pull-side
// counterpart to HandlePush. Returns how many were newly recorded (as
// opposed to already-seen duplicates).
func ProcessSyncResponse(ctx context.Context, store Store, peerID uuid.UUID, resp SyncResponsePayload) (int, error) {
	n := 0
	for _, wm := range resp.Memories {
		_, inserted, err := ingestWireMemory(ctx, store, peerID, wm)
		if err != nil {
			return n, err
		}
		if inserted {
			n++
		}
	}
	return n, nil
}

// ingestWireMemory records a wire memory into received_memories, verifying
// its signature when one is present. Verified is true only when both a
// signature and signer_did are present and the signature checks out — an
// unsigned push is still recorded, just never marked verified.
func ingestWireMemory(ctx context.Context, store Store, peerID uuid.UUID, wm WireMemory) (uuid.UUID, bool, error) {
	verified := false
	if wm.Signature != nil && wm.SignerDID != nil {
		if err := verifyContentSignature(*wm.SignerDID, wm.Content, *wm.Signature); err == nil {
			verified = true
		}
	}

	return store.InsertReceivedMemory(ctx, model.ReceivedMemory{
		PeerID:          peerID,
		OriginalContent: wm.Content,
		Signature:       wm.Signature,
		SignerDID:       wm.SignerDID,
		Verified:        verified,
	})
}
