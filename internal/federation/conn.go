package federation

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/signet-ai/signet/internal/model"
	"github.com/signet-ai/signet/internal/signeterr"
)

// Handler answers the frame types a Conn cannot satisfy on its own —
// everything that touches the memory store.
type Handler interface {
	HandleSyncRequest(ctx context.Context, peerDID string, req SyncRequestPayload) (SyncResponsePayload, error)
	HandlePush(ctx context.Context, peerDID string, push MemoryPushPayload) (MemoryAckPayload, error)
}

// TrustLookup reports the current trust level for a peer DID. Looked up
// fresh on every frame so a mid-connection SetTrustLevel call (an operator
// blocking a peer, say) takes effect without requiring a reconnect.
type TrustLookup func(peerDID string) model.TrustLevel

// Conn wraps a single authenticated federation connection: framing,
// signing, rate limiting, keepalive, and request/response correlation.
type Conn struct {
	ws       *websocket.Conn
	priv     ed25519.PrivateKey
	ourDID   string
	peerDID  string
	trust    TrustLookup
	handler  Handler
	logger   *slog.Logger
	limiter  *connLimiter
	pingEvery time.Duration

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan Frame

	activityMu sync.Mutex
	lastActivity time.Time

	closeOnce sync.Once
	done      chan struct{}
}

// NewConn wraps an already-upgraded/dialed websocket connection. Call
// RunInitiatorHandshake or RunResponderHandshake on it before Run.
func NewConn(ws *websocket.Conn, priv ed25519.PrivateKey, ourDID string, trust TrustLookup, handler Handler, logger *slog.Logger, maxMsgsPerMinute int, pingEvery time.Duration) *Conn {
	return &Conn{
		ws:           ws,
		priv:         priv,
		ourDID:       ourDID,
		trust:        trust,
		handler:      handler,
		logger:       logger,
		limiter:      newConnLimiter(maxMsgsPerMinute, time.Minute),
		pingEvery:    pingEvery,
		pending:      make(map[string]chan Frame),
		lastActivity: time.Now(),
		done:         make(chan struct{}),
	}
}

// PeerDID returns the identity authenticated during the handshake. Empty
// until the handshake completes.
func (c *Conn) PeerDID() string { return c.peerDID }

// SetPeerDID pins the identity this connection is authenticated as, once
// the handshake has verified it.
func (c *Conn) SetPeerDID(did string) { c.peerDID = did }

func (c *Conn) sendFrame(f Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("federation: marshal frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

func (c *Conn) recvFrame(ctx context.Context) (Frame, error) {
	type result struct {
		f   Frame
		err error
	}
	ch := make(chan result, 1)
	go func() {
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			ch <- result{err: err}
			return
		}
		var f Frame
		if err := json.Unmarshal(b, &f); err != nil {
			ch <- result{err: signeterr.Wrap(signeterr.MalformedFrame, err)}
			return
		}
		ch <- result{f: f}
	}()
	select {
	case r := <-ch:
		return r.f, r.err
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Run takes over the connection after a successful handshake: reads
// incoming frames and dispatches them, and sends periodic keepalive pings.
// Blocks until the connection closes or ctx is cancelled.
func (c *Conn) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.close()

	go c.keepaliveLoop(ctx)

	for {
		f, err := c.recvFrame(ctx)
		if err != nil {
			return fmt.Errorf("federation: read frame: %w", err)
		}
		c.touch()
		if err := c.dispatch(ctx, f); err != nil {
			c.logger.Warn("federation: dropping connection after frame error", "peer", c.peerDID, "error", err)
			return err
		}
	}
}

func (c *Conn) touch() {
	c.activityMu.Lock()
	c.lastActivity = time.Now()
	c.activityMu.Unlock()
}

func (c *Conn) idleFor() time.Duration {
	c.activityMu.Lock()
	defer c.activityMu.Unlock()
	return time.Since(c.lastActivity)
}

func (c *Conn) keepaliveLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.idleFor() > 2*c.pingEvery {
				c.logger.Warn("federation: peer unresponsive, closing", "peer", c.peerDID)
				c.close()
				return
			}
			if _, err := c.sendRequest(ctx, FramePing, PingPayload{}, c.pingEvery); err != nil {
				c.logger.Warn("federation: keepalive ping failed", "peer", c.peerDID, "error", err)
			}
		}
	}
}

func (c *Conn) dispatch(ctx context.Context, f Frame) error {
	if err := verifyFrame(f, 5*time.Minute); err != nil {
		return err
	}
	if c.peerDID != "" && f.SenderDID != c.peerDID {
		return signeterr.New(signeterr.BadSignature, "frame signed by a different identity than the authenticated peer")
	}

	if !c.limiter.Allow() {
		c.sendError(f.ID, signeterr.RateLimited, "too many messages, slow down")
		return nil
	}

	level := c.trust(f.SenderDID)
	if !Allowed(level, f.Type) {
		// A push from a merely-pending (not blocked) peer is rejected in its
		// MEMORY_ACK rather than with a connection-level ERROR frame — the
		// peer asked to store something, so it gets a normal answer to that
		// request, just a negative one.
		if f.Type == FrameMemoryPush && level != model.TrustBlocked {
			ack, err := newFrame(FrameMemoryAck, MemoryAckPayload{
				Accepted: false,
				Reason:   fmt.Sprintf("peer trust level %q may not push memories", level),
			}, c.priv, c.ourDID)
			if err != nil {
				return err
			}
			ack.ID = f.ID
			return c.sendFrame(ack)
		}

		code := signeterr.NotTrusted
		if level == model.TrustBlocked {
			code = signeterr.Blocked
		}
		c.sendError(f.ID, code, fmt.Sprintf("peer trust level %q may not send %s", level, f.Type))
		return nil
	}

	switch f.Type {
	case FramePing:
		pong, err := newFrame(FramePong, PongPayload{}, c.priv, c.ourDID)
		if err != nil {
			return err
		}
		pong.ID = f.ID
		return c.sendFrame(pong)

	case FramePong, FrameSyncResponse, FrameMemoryAck, FrameError:
		c.deliverPending(f)
		return nil

	case FrameSyncRequest:
		var req SyncRequestPayload
		if err := decodePayload(f, &req); err != nil {
			return err
		}
		resp, err := c.handler.HandleSyncRequest(ctx, f.SenderDID, req)
		if err != nil {
			c.sendError(f.ID, signeterr.Unavailable, err.Error())
			return nil
		}
		respFrame, err := newFrame(FrameSyncResponse, resp, c.priv, c.ourDID)
		if err != nil {
			return err
		}
		respFrame.ID = f.ID
		return c.sendFrame(respFrame)

	case FrameMemoryPush:
		var push MemoryPushPayload
		if err := decodePayload(f, &push); err != nil {
			return err
		}
		ack, err := c.handler.HandlePush(ctx, f.SenderDID, push)
		if err != nil {
			c.sendError(f.ID, signeterr.Unavailable, err.Error())
			return nil
		}
		ackFrame, err := newFrame(FrameMemoryAck, ack, c.priv, c.ourDID)
		if err != nil {
			return err
		}
		ackFrame.ID = f.ID
		return c.sendFrame(ackFrame)

	case FrameHandshake, FrameHandshakeAck:
		return signeterr.Newf(signeterr.MalformedFrame, "unexpected %s after handshake completed", f.Type)

	default:
		return signeterr.Newf(signeterr.MalformedFrame, "unhandled frame type %s", f.Type)
	}
}

func (c *Conn) sendError(correlationID string, code signeterr.Code, message string) {
	f, err := newFrame(FrameError, ErrorPayload{Code: wireCode(code), Message: message}, c.priv, c.ourDID)
	if err != nil {
		return
	}
	f.ID = correlationID
	if err := c.sendFrame(f); err != nil {
		c.logger.Warn("federation: failed to send error frame", "error", err)
	}
}

// sendRequest sends a frame of typ with a fresh correlation ID and blocks
// until a matching response arrives, ctx is done, or timeout elapses.
func (c *Conn) sendRequest(ctx context.Context, typ FrameType, payload any, timeout time.Duration) (Frame, error) {
	f, err := newFrame(typ, payload, c.priv, c.ourDID)
	if err != nil {
		return Frame{}, err
	}
	f.ID = uuid.New().String()

	ch := make(chan Frame, 1)
	c.pendingMu.Lock()
	c.pending[f.ID] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, f.ID)
		c.pendingMu.Unlock()
	}()

	if err := c.sendFrame(f); err != nil {
		return Frame{}, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case resp := <-ch:
		if resp.Type == FrameError {
			var ep ErrorPayload
			if err := decodePayload(resp, &ep); err == nil {
				return resp, signeterr.New(fromWireCode(ep.Code), ep.Message)
			}
		}
		return resp, nil
	case <-c.done:
		return Frame{}, ErrConnectionClosed
	case <-reqCtx.Done():
		return Frame{}, reqCtx.Err()
	}
}

// ErrConnectionClosed is returned by any in-flight request when the
// connection closes before a response arrives.
var ErrConnectionClosed = fmt.Errorf("federation: connection closed")

func (c *Conn) deliverPending(f Frame) {
	c.pendingMu.Lock()
	ch, ok := c.pending[f.ID]
	c.pendingMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- f:
	default:
	}
}

// Sync requests memories from the peer since a given point.
func (c *Conn) Sync(ctx context.Context, req SyncRequestPayload, timeout time.Duration) (SyncResponsePayload, error) {
	f, err := c.sendRequest(ctx, FrameSyncRequest, req, timeout)
	if err != nil {
		return SyncResponsePayload{}, err
	}
	var resp SyncResponsePayload
	if err := decodePayload(f, &resp); err != nil {
		return SyncResponsePayload{}, err
	}
	return resp, nil
}

// Push ships a single memory to the peer and waits for its ack.
func (c *Conn) Push(ctx context.Context, payload MemoryPushPayload, timeout time.Duration) (MemoryAckPayload, error) {
	f, err := c.sendRequest(ctx, FrameMemoryPush, payload, timeout)
	if err != nil {
		return MemoryAckPayload{}, err
	}
	var ack MemoryAckPayload
	if err := decodePayload(f, &ack); err != nil {
		return MemoryAckPayload{}, err
	}
	return ack, nil
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	c.close()
	return nil
}

// Done returns a channel closed once the connection has shut down.
func (c *Conn) Done() <-chan struct{} { return c.done }
