package federation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/signet-ai/signet/internal/model"
)

type fakeFederationStore struct {
	peers      map[string]model.Peer
	publishable []model.Memory
	received   map[string]uuid.UUID // key: peerID+content
	syncCount  int
	pushCount  int
	shared     []uuid.UUID
}

func (f *fakeFederationStore) SelectPublishable(ctx context.Context, peerID uuid.UUID, since *time.Time, types []model.MemoryType, limit int) ([]model.Memory, error) {
	if limit > 0 && limit < len(f.publishable) {
		return f.publishable[:limit], nil
	}
	return f.publishable, nil
}

func (f *fakeFederationStore) MarkShared(ctx context.Context, memoryID, peerID uuid.UUID) error {
	f.shared = append(f.shared, memoryID)
	return nil
}

func (f *fakeFederationStore) InsertReceivedMemory(ctx context.Context, rm model.ReceivedMemory) (uuid.UUID, bool, error) {
	key := rm.PeerID.String() + "|" + rm.OriginalContent
	if f.received == nil {
		f.received = make(map[string]uuid.UUID)
	}
	if id, ok := f.received[key]; ok {
		return id, false, nil
	}
	id := uuid.New()
	f.received[key] = id
	return id, true, nil
}

func (f *fakeFederationStore) PeerByDID(ctx context.Context, did string) (model.Peer, error) {
	p, ok := f.peers[did]
	if !ok {
		return model.Peer{}, errors.New("peer not found")
	}
	return p, nil
}

func (f *fakeFederationStore) RecordSync(ctx context.Context, id uuid.UUID) error {
	f.syncCount++
	return nil
}

func (f *fakeFederationStore) RecordPush(ctx context.Context, id uuid.UUID) error {
	f.pushCount++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleSyncRequest_ReturnsPublishableAndMarksShared(t *testing.T) {
	peerID := uuid.New()
	peerDID := "did:key:zexample"
	store := &fakeFederationStore{
		peers: map[string]model.Peer{peerDID: {ID: peerID, DID: peerDID, TrustLevel: model.TrustTrusted}},
		publishable: []model.Memory{
			{ID: uuid.New(), Content: "hello", Type: model.MemoryTypeFact},
			{ID: uuid.New(), Content: "world", Type: model.MemoryTypeFact},
		},
	}
	h := NewStoreHandler(store, testLogger())

	resp, err := h.HandleSyncRequest(context.Background(), peerDID, SyncRequestPayload{})
	require.NoError(t, err)
	require.Len(t, resp.Memories, 2)
	require.False(t, resp.HasMore)
	require.Len(t, store.shared, 2)
	require.Equal(t, 1, store.syncCount)
}

func TestHandlePush_DeduplicatesOnPeerAndContent(t *testing.T) {
	peerID := uuid.New()
	peerDID := "did:key:zexample"
	store := &fakeFederationStore{
		peers: map[string]model.Peer{peerDID: {ID: peerID, DID: peerDID, TrustLevel: model.TrustTrusted}},
	}
	h := NewStoreHandler(store, testLogger())

	push := MemoryPushPayload{Memory: WireMemory{Content: "shared fact", Type: string(model.MemoryTypeFact)}}

	ack1, err := h.HandlePush(context.Background(), peerDID, push)
	require.NoError(t, err)
	require.True(t, ack1.Accepted)

	ack2, err := h.HandlePush(context.Background(), peerDID, push)
	require.NoError(t, err)
	require.False(t, ack2.Accepted)
	require.Equal(t, "duplicate", ack2.Reason)
	require.Equal(t, 1, store.pushCount)
}

func TestProcessSyncResponse_CountsOnlyNewMemories(t *testing.T) {
	peerID := uuid.New()
	store := &fakeFederationStore{}

	resp := SyncResponsePayload{Memories: []WireMemory{
		{Content: "a"},
		{Content: "b"},
		{Content: "a"}, // duplicate within the same response
	}}

	n, err := ProcessSyncResponse(context.Background(), store, peerID, resp)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
