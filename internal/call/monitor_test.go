package call

import (
	"context"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/stretchr/testify/require"

	"github.com/nkrett/callwire/internal/core"
)

func establishedSession(t *testing.T) (*Session, *fakeLinks, *fakeChannel, *fakeEvents) {
	t.Helper()
	s, links, _, channel, events := testSession("alice")
	_, err := s.Initiate(context.Background(), "bob")
	require.NoError(t, err)
	require.NoError(t, s.ApplyAnswer(validAnswerPayload()))
	return s, links, channel, events
}

func TestEstablishedFiresOnce(t *testing.T) {
	s, links, _, events := establishedSession(t)
	link := links.last()

	link.onConn(webrtc.PeerConnectionStateConnecting)
	link.onConn(webrtc.PeerConnectionStateConnected)
	link.onICE(webrtc.ICEConnectionStateConnected) // the ICE sub-state echoes it
	link.onConn(webrtc.PeerConnectionStateConnected)

	established, failed, _ := events.counts()
	require.Equal(t, 1, established)
	require.Zero(t, failed)
	require.Equal(t, StateConnected, s.State())
	require.Equal(t, "connected", s.ConnectionQuality())
}

func TestFailureGetsExactlyOneRestartThenTerminal(t *testing.T) {
	s, links, channel, events := establishedSession(t)
	link := links.last()

	link.onConn(webrtc.PeerConnectionStateConnected)
	link.onICE(webrtc.ICEConnectionStateFailed)

	require.Equal(t, 1, link.restartCalls, "first failure triggers one restart")
	restartOffers := channel.byType(core.EnvelopeOffer)
	require.Len(t, restartOffers, 1)
	require.Equal(t, "bob", restartOffers[0].To)

	// The restarted link starts checking again, then fails for good.
	link.onICE(webrtc.ICEConnectionStateChecking)
	link.onICE(webrtc.ICEConnectionStateFailed)
	established, failed, _ := events.counts()
	require.Equal(t, 1, established)
	require.Equal(t, 1, failed, "terminal CallFailed fires exactly once")
	require.ErrorIs(t, events.lastErr, core.ErrCallFailed)
	require.Equal(t, StateFailed, s.State())

	// Further noise changes nothing.
	link.onICE(webrtc.ICEConnectionStateFailed)
	link.onConn(webrtc.PeerConnectionStateFailed)
	_, failed, _ = events.counts()
	require.Equal(t, 1, failed)
	require.Equal(t, 1, link.restartCalls)
}

func TestEchoedFailureIsNotSustainedFailure(t *testing.T) {
	// The connection state is derived from the ICE transport state, so one
	// failure episode arrives on both channels. The echo, and any repeat
	// before the restart renegotiated, must not kill the recovery attempt.
	s, links, _, events := establishedSession(t)
	link := links.last()

	link.onConn(webrtc.PeerConnectionStateConnected)
	link.onICE(webrtc.ICEConnectionStateFailed)
	link.onConn(webrtc.PeerConnectionStateFailed) // echo of the same episode
	link.onICE(webrtc.ICEConnectionStateFailed)   // still pre-renegotiation

	require.Equal(t, 1, link.restartCalls)
	_, failed, _ := events.counts()
	require.Zero(t, failed, "echoed failure must not be terminal before the restart had a chance")
	require.Equal(t, StateConnected, s.State())

	// The restart succeeds and the call survives.
	link.onICE(webrtc.ICEConnectionStateChecking)
	link.onICE(webrtc.ICEConnectionStateConnected)
	_, failed, _ = events.counts()
	require.Zero(t, failed)
}

func TestRecoveryAfterRestartRearmsBudget(t *testing.T) {
	_, links, _, events := establishedSession(t)
	link := links.last()

	link.onConn(webrtc.PeerConnectionStateConnected)
	link.onICE(webrtc.ICEConnectionStateDisconnected)
	require.Equal(t, 1, link.restartCalls)

	// The restart worked; a later, separate failure episode gets its own
	// single attempt.
	link.onICE(webrtc.ICEConnectionStateConnected)
	link.onICE(webrtc.ICEConnectionStateFailed)
	require.Equal(t, 2, link.restartCalls)

	_, failed, _ := events.counts()
	require.Zero(t, failed)
}

func TestRestartAnswerAppliedInPlace(t *testing.T) {
	s, links, _, _ := establishedSession(t)
	link := links.last()

	link.onICE(webrtc.ICEConnectionStateFailed) // triggers the restart offer
	require.Equal(t, 1, link.restartCalls)

	before := s.State()
	require.NoError(t, s.ApplyAnswer(validAnswerPayload()))
	require.Equal(t, before, s.State(), "restart answer does not rewind the state machine")
	require.Equal(t, "v=0 wire-answer", link.remoteDesc.SDP)
}

func TestStateChangesAfterTeardownIgnored(t *testing.T) {
	s, links, _, events := establishedSession(t)
	link := links.last()

	s.Teardown()
	require.NotPanics(t, func() {
		link.onConn(webrtc.PeerConnectionStateConnected)
		link.onICE(webrtc.ICEConnectionStateFailed)
	})

	established, failed, closed := events.counts()
	require.Zero(t, established)
	require.Zero(t, failed)
	require.Equal(t, 1, closed)
	require.Zero(t, link.restartCalls)
}
