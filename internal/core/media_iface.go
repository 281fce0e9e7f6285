package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// LocalTrack is one owned capture track (audio or video). Enablement toggles
// map to mute/hide without renegotiation.
type LocalTrack interface {
	ID() string
	Kind() webrtc.RTPCodecType
	SetEnabled(bool)
	Enabled() bool
	// Unwrap exposes the underlying pion track for attachment to a real
	// peer connection. Fakes may return nil.
	Unwrap() webrtc.TrackLocal
}

// RemoteTrack is a read-only view of a track received from the remote peer.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
}

// MediaSource acquires local capture. Owned by the session from Acquire
// until LocalMedia.Release.
type MediaSource interface {
	Acquire(ctx context.Context) (*LocalMedia, error)
}
