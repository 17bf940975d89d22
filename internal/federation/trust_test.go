package federation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/signet-ai/signet/internal/model"
)

func TestAllowed_PendingMayHandshakeAndKeepaliveNotSyncOrPush(t *testing.T) {
	require.True(t, Allowed(model.TrustPending, FrameHandshake))
	require.True(t, Allowed(model.TrustPending, FramePing))
	require.False(t, Allowed(model.TrustPending, FrameSyncRequest))
	require.False(t, Allowed(model.TrustPending, FrameMemoryPush))
}

func TestAllowed_TrustedMayDoEverything(t *testing.T) {
	for _, ft := range []FrameType{FrameHandshake, FramePing, FrameSyncRequest, FrameMemoryPush} {
		require.True(t, Allowed(model.TrustTrusted, ft), "trusted should be allowed %s", ft)
	}
}

func TestAllowed_BlockedDeniedEverything(t *testing.T) {
	for _, ft := range []FrameType{FrameHandshake, FramePing, FrameSyncRequest, FrameMemoryPush} {
		require.False(t, Allowed(model.TrustBlocked, ft), "blocked should be denied %s", ft)
	}
}

func TestAllowed_UnknownTrustLevelDeniedByDefault(t *testing.T) {
	require.False(t, Allowed(model.TrustLevel("nonsense"), FramePing))
}
