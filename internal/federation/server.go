package federation

import (
	"context"
	"crypto/ed25519"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/signet-ai/signet/internal/model"
)

// PeerStore is Store plus the registration/trust calls the server needs
// when a new peer connects for the first time.
type PeerStore interface {
	Store
	UpsertPeer(ctx context.Context, did string, displayName, address *string) (model.Peer, error)
	SetTrustLevel(ctx context.Context, id uuid.UUID, level model.TrustLevel) error
}

// ServerConfig configures a federation Server.
type ServerConfig struct {
	Store                PeerStore
	PrivateKey           ed25519.PrivateKey
	OurDID               string
	DisplayName          string
	Logger               *slog.Logger
	HandshakeTimeout     time.Duration
	PingInterval         time.Duration
	MaxMessagesPerMinute int
}

// Server accepts inbound federation WebSocket connections.
type Server struct {
	cfg      ServerConfig
	upgrader websocket.Upgrader
	handler  *StoreHandler

	mu    sync.Mutex
	conns map[string]*Conn // keyed by peer DID
}

// NewServer builds a federation Server. Call its ServeHTTP from an
// http.ServeMux entry (e.g. "/federation/ws").
func NewServer(cfg ServerConfig) *Server {
	return &Server{
		cfg:     cfg,
		handler: NewStoreHandler(cfg.Store, cfg.Logger),
		conns:   make(map[string]*Conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and runs its handshake and read loop in
// a background goroutine; it returns as soon as the upgrade succeeds.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.cfg.Logger.Warn("federation: websocket upgrade failed", "error", err)
		return
	}
	go s.accept(r.Context(), ws)
}

func (s *Server) accept(ctx context.Context, ws *websocket.Conn) {
	conn := NewConn(ws, s.cfg.PrivateKey, s.cfg.OurDID, s.trustLookup, s.handler, s.cfg.Logger,
		s.cfg.MaxMessagesPerMinute, s.cfg.PingInterval)

	peerDID, err := RunResponderHandshake(ctx, conn, s.cfg.PrivateKey, s.cfg.OurDID, s.cfg.DisplayName, s.cfg.HandshakeTimeout, s.trustLookup)
	if err != nil {
		// RunResponderHandshake already sends a signed ERROR frame carrying
		// the failure code (bad signature, blocked peer, malformed frame)
		// before returning, so the peer sees why, not just a dropped socket.
		s.cfg.Logger.Warn("federation: inbound handshake failed", "error", err)
		_ = ws.Close()
		return
	}
	conn.SetPeerDID(peerDID)

	if _, err := s.cfg.Store.UpsertPeer(ctx, peerDID, nil, nil); err != nil {
		s.cfg.Logger.Error("federation: register inbound peer failed", "did", peerDID, "error", err)
		_ = ws.Close()
		return
	}

	s.mu.Lock()
	s.conns[peerDID] = conn
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, peerDID)
		s.mu.Unlock()
	}()

	s.cfg.Logger.Info("federation: peer connected", "did", peerDID)
	if err := conn.Run(ctx); err != nil {
		s.cfg.Logger.Info("federation: connection closed", "did", peerDID, "error", err)
	}
}

func (s *Server) trustLookup(peerDID string) model.TrustLevel {
	peer, err := s.cfg.Store.PeerByDID(context.Background(), peerDID)
	if err != nil {
		return model.TrustBlocked
	}
	return peer.TrustLevel
}

// ConnFor returns the live connection for a peer, if currently connected.
func (s *Server) ConnFor(peerDID string) (*Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[peerDID]
	return c, ok
}

// Broadcast pushes a memory to every currently connected, trusted peer.
func (s *Server) Broadcast(ctx context.Context, payload MemoryPushPayload, timeout time.Duration) {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if _, err := c.Push(ctx, payload, timeout); err != nil {
			s.cfg.Logger.Warn("federation: broadcast push failed", "peer", c.PeerDID(), "error", err)
		}
	}
}
