package federation

import "github.com/signet-ai/signet/internal/model"

// permission is an operation a frame type requires trust to perform.
// Several frame types map to the same permission (HANDSHAKE/HANDSHAKE_ACK
// both need handshake; SYNC_REQUEST/SYNC_RESPONSE both need sync).
type permission string

const (
	permHandshake permission = "handshake"
	permKeepalive permission = "keepalive" // PING/PONG
	permSync      permission = "sync"      // SYNC_REQUEST/SYNC_RESPONSE
	permPush      permission = "push"      // MEMORY_PUSH/MEMORY_ACK
)

func permissionFor(t FrameType) permission {
	switch t {
	case FrameHandshake, FrameHandshakeAck:
		return permHandshake
	case FramePing, FramePong:
		return permKeepalive
	case FrameSyncRequest, FrameSyncResponse:
		return permSync
	case FrameMemoryPush, FrameMemoryAck:
		return permPush
	default:
		return permHandshake
	}
}

// allowedTable encodes spec's trust matrix: rows are trust levels, columns
// permissions. A blocked peer is refused everything past the transport
// handshake itself; a pending peer may complete handshakes and keepalives
// (so a connection stays open while awaiting an operator's trust decision)
// but not sync or push. Federation never promotes a peer's trust level on
// its own — only Store.SetTrustLevel (an explicit, local call) does that.
var allowedTable = map[model.TrustLevel]map[permission]bool{
	model.TrustPending: {
		permHandshake: true,
		permKeepalive: true,
		permSync:      false,
		permPush:      false,
	},
	model.TrustTrusted: {
		permHandshake: true,
		permKeepalive: true,
		permSync:      true,
		permPush:      true,
	},
	model.TrustBlocked: {
		permHandshake: false,
		permKeepalive: false,
		permSync:      false,
		permPush:      false,
	},
}

// Allowed reports whether a peer at the given trust level may send/receive
// a frame of type t.
func Allowed(level model.TrustLevel, t FrameType) bool {
	perms, ok := allowedTable[level]
	if !ok {
		return false
	}
	return perms[permissionFor(t)]
}
