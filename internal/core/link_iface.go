package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// PeerLink abstracts one peer-connection primitive. The production
// implementation wraps *webrtc.PeerConnection; tests substitute fakes.
//
// Callbacks are wired once, right after construction, and must tolerate being
// invoked from the link's own goroutines.
type PeerLink interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	// LocalDescription returns the committed local description, which after
	// gathering completes includes the gathered candidates.
	LocalDescription() *webrtc.SessionDescription

	AddICECandidate(webrtc.ICECandidateInit) error
	// GatheringComplete is closed once local ICE gathering for the current
	// local description finishes. Waiting on it is always bounded by the
	// caller.
	GatheringComplete() <-chan struct{}

	// AddTrack attaches a local track as an outgoing sender.
	AddTrack(LocalTrack) error
	// StopSenders detaches and stops every outgoing sender. Idempotent.
	StopSenders()

	// RestartICE renegotiates connectivity in place and returns the restart
	// offer to forward to the remote peer.
	RestartICE() (webrtc.SessionDescription, error)

	SignalingState() webrtc.SignalingState

	OnICECandidate(func(webrtc.ICECandidateInit))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	OnICEConnectionStateChange(func(webrtc.ICEConnectionState))
	OnTrack(func(RemoteTrack))

	Close() error
}

// LinkFactory builds a fresh PeerLink bound to freshly fetched ICE-server
// configuration. Invoked by the session on every reset.
type LinkFactory func(ctx context.Context) (PeerLink, error)
