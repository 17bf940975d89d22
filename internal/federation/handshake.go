package federation

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/signet-ai/signet/internal/model"
	"github.com/signet-ai/signet/internal/signeterr"
)

// State is a connection's position in the handshake state machine.
type State string

const (
	StateOpen            State = "open"
	StateHandshakeSent    State = "handshake_sent"    // initiator: sent HANDSHAKE, awaiting HANDSHAKE_ACK
	StateAwaitingCounter  State = "awaiting_counter"   // responder: sent HANDSHAKE_ACK, awaiting confirm
	StateAuthenticated    State = "authenticated"
	StateClosed           State = "closed"
)

// sendHandshakeError best-effort sends a signed ERROR frame during the
// handshake, before the caller closes the connection. Send failures are
// swallowed — the caller is already on its way to closing the socket, and a
// failed ERROR send shouldn't mask the original handshake failure.
func sendHandshakeError(c frameSender, priv ed25519.PrivateKey, ourDID string, code signeterr.Code, message string) {
	f, err := newFrame(FrameError, ErrorPayload{Code: wireCode(code), Message: message}, priv, ourDID)
	if err != nil {
		return
	}
	_ = c.sendFrame(f)
}

// errCode extracts the signeterr.Code from err for an outbound ERROR frame,
// falling back to a generic code for errors not already tagged.
func errCode(err error, fallback signeterr.Code) signeterr.Code {
	if code := signeterr.CodeOf(err); code != "" {
		return code
	}
	return fallback
}

func randomChallenge() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("federation: generate challenge: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// frameSender is the minimal surface handshake needs from a Conn, kept
// narrow so it can be driven in tests without a real websocket.
type frameSender interface {
	sendFrame(f Frame) error
	recvFrame(ctx context.Context) (Frame, error)
}

// RunInitiatorHandshake drives the OPEN -> HANDSHAKE_SENT -> AUTHENTICATED
// side of the state machine: send our challenge, verify the echo and the
// peer's signature, answer their counter challenge.
func RunInitiatorHandshake(ctx context.Context, c frameSender, priv ed25519.PrivateKey, ourDID, displayName string, timeout time.Duration) (peerDID string, err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	challenge, err := randomChallenge()
	if err != nil {
		return "", err
	}
	hs, err := newFrame(FrameHandshake, HandshakePayload{Challenge: challenge, DisplayName: displayName}, priv, ourDID)
	if err != nil {
		return "", err
	}
	if err := c.sendFrame(hs); err != nil {
		return "", fmt.Errorf("federation: send handshake: %w", err)
	}

	ack, err := c.recvFrame(ctx)
	if err != nil {
		return "", fmt.Errorf("federation: await handshake ack: %w", err)
	}
	if ack.Type != FrameHandshakeAck {
		err := signeterr.Newf(signeterr.MalformedFrame, "expected HANDSHAKE_ACK, got %s", ack.Type)
		sendHandshakeError(c, priv, ourDID, signeterr.MalformedFrame, err.Error())
		return "", err
	}
	if err := verifyFrame(ack, 5*time.Minute); err != nil {
		sendHandshakeError(c, priv, ourDID, errCode(err, signeterr.BadSignature), err.Error())
		return "", err
	}
	var ackPayload HandshakeAckPayload
	if err := decodePayload(ack, &ackPayload); err != nil {
		sendHandshakeError(c, priv, ourDID, errCode(err, signeterr.MalformedFrame), err.Error())
		return "", err
	}
	if ackPayload.Challenge != challenge {
		err := signeterr.New(signeterr.BadSignature, "handshake ack echoed the wrong challenge")
		sendHandshakeError(c, priv, ourDID, signeterr.BadSignature, err.Error())
		return "", err
	}

	confirm, err := newFrame(FrameHandshakeAck, HandshakeAckPayload{CounterChallenge: ackPayload.CounterChallenge}, priv, ourDID)
	if err != nil {
		return "", err
	}
	if err := c.sendFrame(confirm); err != nil {
		return "", fmt.Errorf("federation: send handshake confirm: %w", err)
	}

	return ack.SenderDID, nil
}

// RunResponderHandshake drives the OPEN -> AWAITING_COUNTER -> AUTHENTICATED
// side: wait for a HANDSHAKE, echo its challenge alongside our own counter
// challenge, then wait for the initiator to echo the counter challenge back.
// trust is consulted as soon as the initiator's identity is known (right
// after its signature verifies); a blocked peer is refused with an
// ERROR{BLOCKED} frame instead of a HANDSHAKE_ACK. trust may be nil, in
// which case no peer is refused at this stage.
func RunResponderHandshake(ctx context.Context, c frameSender, priv ed25519.PrivateKey, ourDID, displayName string, timeout time.Duration, trust TrustLookup) (peerDID string, err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hs, err := c.recvFrame(ctx)
	if err != nil {
		return "", fmt.Errorf("federation: await handshake: %w", err)
	}
	if hs.Type != FrameHandshake {
		err := signeterr.Newf(signeterr.MalformedFrame, "expected HANDSHAKE, got %s", hs.Type)
		sendHandshakeError(c, priv, ourDID, signeterr.MalformedFrame, err.Error())
		return "", err
	}
	if err := verifyFrame(hs, 5*time.Minute); err != nil {
		sendHandshakeError(c, priv, ourDID, errCode(err, signeterr.BadSignature), err.Error())
		return "", err
	}

	if trust != nil && trust(hs.SenderDID) == model.TrustBlocked {
		sendHandshakeError(c, priv, ourDID, signeterr.Blocked, "peer is blocked")
		return "", signeterr.New(signeterr.Blocked, "responder refused handshake: peer is blocked")
	}

	var hsPayload HandshakePayload
	if err := decodePayload(hs, &hsPayload); err != nil {
		sendHandshakeError(c, priv, ourDID, errCode(err, signeterr.MalformedFrame), err.Error())
		return "", err
	}

	counter, err := randomChallenge()
	if err != nil {
		return "", err
	}
	ack, err := newFrame(FrameHandshakeAck, HandshakeAckPayload{
		Challenge:        hsPayload.Challenge,
		CounterChallenge: counter,
		DisplayName:      displayName,
	}, priv, ourDID)
	if err != nil {
		return "", err
	}
	if err := c.sendFrame(ack); err != nil {
		return "", fmt.Errorf("federation: send handshake ack: %w", err)
	}

	confirm, err := c.recvFrame(ctx)
	if err != nil {
		return "", fmt.Errorf("federation: await handshake confirm: %w", err)
	}
	if confirm.Type != FrameHandshakeAck {
		err := signeterr.Newf(signeterr.MalformedFrame, "expected handshake confirm, got %s", confirm.Type)
		sendHandshakeError(c, priv, ourDID, signeterr.MalformedFrame, err.Error())
		return "", err
	}
	if err := verifyFrame(confirm, 5*time.Minute); err != nil {
		sendHandshakeError(c, priv, ourDID, errCode(err, signeterr.BadSignature), err.Error())
		return "", err
	}
	if confirm.SenderDID != hs.SenderDID {
		err := signeterr.New(signeterr.BadSignature, "handshake confirm signed by a different identity than the original handshake")
		sendHandshakeError(c, priv, ourDID, signeterr.BadSignature, err.Error())
		return "", err
	}
	var confirmPayload HandshakeAckPayload
	if err := decodePayload(confirm, &confirmPayload); err != nil {
		sendHandshakeError(c, priv, ourDID, errCode(err, signeterr.MalformedFrame), err.Error())
		return "", err
	}
	if confirmPayload.CounterChallenge != counter {
		err := signeterr.New(signeterr.BadSignature, "handshake confirm echoed the wrong counter challenge")
		sendHandshakeError(c, priv, ourDID, signeterr.BadSignature, err.Error())
		return "", err
	}

	return hs.SenderDID, nil
}
