package federation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/signet-ai/signet/internal/model"
	"github.com/signet-ai/signet/internal/signeterr"
)

// pipeSender is an in-memory frameSender used to drive the handshake state
// machine in tests without a real websocket connection.
type pipeSender struct {
	out chan<- Frame
	in  <-chan Frame
}

func (p *pipeSender) sendFrame(f Frame) error {
	p.out <- f
	return nil
}

func (p *pipeSender) recvFrame(ctx context.Context) (Frame, error) {
	select {
	case f := <-p.in:
		return f, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func newPipe() (a, b *pipeSender) {
	ab := make(chan Frame, 4)
	ba := make(chan Frame, 4)
	a = &pipeSender{out: ab, in: ba}
	b = &pipeSender{out: ba, in: ab}
	return a, b
}

func TestHandshake_MutualAuthenticationSucceeds(t *testing.T) {
	_, initPriv, initDID := genIdentity(t)
	_, respPriv, respDID := genIdentity(t)

	initSide, respSide := newPipe()

	type result struct {
		did string
		err error
	}
	initCh := make(chan result, 1)
	respCh := make(chan result, 1)

	go func() {
		d, err := RunInitiatorHandshake(context.Background(), initSide, initPriv, initDID, "initiator", 2*time.Second)
		initCh <- result{d, err}
	}()
	go func() {
		d, err := RunResponderHandshake(context.Background(), respSide, respPriv, respDID, "responder", 2*time.Second, nil)
		respCh <- result{d, err}
	}()

	ir := <-initCh
	rr := <-respCh

	require.NoError(t, ir.err)
	require.NoError(t, rr.err)
	require.Equal(t, respDID, ir.did)
	require.Equal(t, initDID, rr.did)
}

func TestHandshake_BlockedPeerRefusedWithErrorFrame(t *testing.T) {
	_, initPriv, initDID := genIdentity(t)
	_, respPriv, respDID := genIdentity(t)

	initSide, respSide := newPipe()
	blocked := func(did string) model.TrustLevel {
		require.Equal(t, initDID, did)
		return model.TrustBlocked
	}

	challenge, err := randomChallenge()
	require.NoError(t, err)
	hs, err := newFrame(FrameHandshake, HandshakePayload{Challenge: challenge, DisplayName: "initiator"}, initPriv, initDID)
	require.NoError(t, err)
	require.NoError(t, initSide.sendFrame(hs))

	_, err = RunResponderHandshake(context.Background(), respSide, respPriv, respDID, "responder", 2*time.Second, blocked)
	require.Error(t, err)
	require.True(t, signeterr.Is(err, signeterr.Blocked))

	errFrame := <-initSide.in
	require.Equal(t, FrameError, errFrame.Type)
	var payload ErrorPayload
	require.NoError(t, decodePayload(errFrame, &payload))
	require.Equal(t, "BLOCKED", payload.Code)
}

func TestHandshake_BadSignatureSendsErrorFrameBeforeClosing(t *testing.T) {
	_, _, initDID := genIdentity(t)
	_, respPriv, respDID := genIdentity(t)
	_, impostorPriv, _ := genIdentity(t)

	initSide, respSide := newPipe()

	challenge, err := randomChallenge()
	require.NoError(t, err)
	hs, err := newFrame(FrameHandshake, HandshakePayload{Challenge: challenge, DisplayName: "imposter"}, impostorPriv, initDID)
	require.NoError(t, err)
	require.NoError(t, initSide.sendFrame(hs))

	_, err = RunResponderHandshake(context.Background(), respSide, respPriv, respDID, "responder", 2*time.Second, nil)
	require.Error(t, err)
	require.True(t, signeterr.Is(err, signeterr.BadSignature))

	errFrame := <-initSide.in
	require.Equal(t, FrameError, errFrame.Type)
	var payload ErrorPayload
	require.NoError(t, decodePayload(errFrame, &payload))
	require.Equal(t, "BAD_SIGNATURE", payload.Code)
}

func TestHandshake_TimesOutWhenPeerSilent(t *testing.T) {
	_, priv, d := genIdentity(t)
	lonely, _ := newPipe()

	_, err := RunInitiatorHandshake(context.Background(), lonely, priv, d, "me", 50*time.Millisecond)
	require.Error(t, err)
}
