package federation

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/signet-ai/signet/internal/model"
)

// ClientConfig configures a reconnecting outbound connection to one peer.
type ClientConfig struct {
	URL                  string // ws:// or wss:// address
	PrivateKey           ed25519.PrivateKey
	OurDID               string
	DisplayName          string
	Store                PeerStore
	Logger               *slog.Logger
	HandshakeTimeout     time.Duration
	PingInterval         time.Duration
	MaxMessagesPerMinute int
	MaxReconnectAttempts int
}

// Client maintains a persistent outbound federation connection, reconnecting
// with exponential backoff when the connection drops.
type Client struct {
	cfg     ClientConfig
	handler *StoreHandler

	mu      sync.Mutex
	conn    *Conn
	peerDID string

	cancel context.CancelFunc
	done   chan struct{}
}

// NewClient builds a Client. Call Run to start connecting.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		cfg:     cfg,
		handler: NewStoreHandler(cfg.Store, cfg.Logger),
		done:    make(chan struct{}),
	}
}

// Run connects and reconnects until ctx is cancelled or the reconnect
// attempt cap is hit. Blocks; call it in a goroutine.
func (cl *Client) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	cl.cancel = cancel
	defer close(cl.done)

	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if cl.cfg.MaxReconnectAttempts > 0 && attempts >= cl.cfg.MaxReconnectAttempts {
			cl.cfg.Logger.Error("federation: giving up reconnecting", "url", cl.cfg.URL, "attempts", attempts)
			return
		}

		err := cl.connectAndRun(ctx)
		if ctx.Err() != nil {
			return
		}
		attempts++
		wait := backoffDelay(attempts)
		cl.cfg.Logger.Warn("federation: connection lost, reconnecting", "url", cl.cfg.URL, "attempt", attempts, "wait", wait, "error", err)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

// backoffDelay is min(base*2^n, 60s) plus jitter, via backoff/v4's
// exponential policy rather than a hand-rolled doubling loop.
func backoffDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 60 * time.Second
	b.MaxElapsedTime = 0 // caller enforces the attempt cap, not an overall deadline
	b.Reset()
	var d time.Duration
	for i := 0; i <= attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

func (cl *Client) connectAndRun(ctx context.Context) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, cl.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("federation: dial %s: %w", cl.cfg.URL, err)
	}

	conn := NewConn(ws, cl.cfg.PrivateKey, cl.cfg.OurDID, cl.trustLookup, cl.handler, cl.cfg.Logger,
		cl.cfg.MaxMessagesPerMinute, cl.cfg.PingInterval)

	peerDID, err := RunInitiatorHandshake(ctx, conn, cl.cfg.PrivateKey, cl.cfg.OurDID, cl.cfg.DisplayName, cl.cfg.HandshakeTimeout)
	if err != nil {
		_ = ws.Close()
		return fmt.Errorf("federation: handshake with %s: %w", cl.cfg.URL, err)
	}
	conn.SetPeerDID(peerDID)

	addr := cl.cfg.URL
	if _, err := cl.cfg.Store.UpsertPeer(ctx, peerDID, nil, &addr); err != nil {
		cl.cfg.Logger.Warn("federation: upsert peer failed", "did", peerDID, "error", err)
	}

	cl.mu.Lock()
	cl.conn = conn
	cl.peerDID = peerDID
	cl.mu.Unlock()
	defer func() {
		cl.mu.Lock()
		cl.conn = nil
		cl.mu.Unlock()
	}()

	cl.cfg.Logger.Info("federation: connected", "url", cl.cfg.URL, "peer", peerDID)
	return conn.Run(ctx)
}

func (cl *Client) trustLookup(peerDID string) model.TrustLevel {
	peer, err := cl.cfg.Store.PeerByDID(context.Background(), peerDID)
	if err != nil {
		return model.TrustBlocked
	}
	return peer.TrustLevel
}

// Conn returns the currently active connection, if connected.
func (cl *Client) Conn() (*Conn, bool) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.conn, cl.conn != nil
}

// Stop cancels the reconnect loop and closes the active connection.
func (cl *Client) Stop() {
	if cl.cancel != nil {
		cl.cancel()
	}
	if c, ok := cl.Conn(); ok {
		_ = c.Close()
	}
	<-cl.done
}
