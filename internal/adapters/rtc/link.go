// Package rtc implements core.PeerLink over a pion PeerConnection.
package rtc

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/nkrett/callwire/internal/core"
	"github.com/nkrett/callwire/internal/icecfg"
)

// Link wraps one *webrtc.PeerConnection behind the core.PeerLink surface.
type Link struct {
	pc *webrtc.PeerConnection

	mu      sync.Mutex
	senders []*webrtc.RTPSender
	gather  <-chan struct{}
}

// NewLink builds a peer connection from the given ICE configuration.
func NewLink(cfg webrtc.Configuration) (*Link, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &Link{pc: pc}, nil
}

// Factory returns a core.LinkFactory that fetches fresh ICE configuration on
// every reset, the way sessions expect.
func Factory(fetcher *icecfg.Fetcher) core.LinkFactory {
	return func(ctx context.Context) (core.PeerLink, error) {
		return NewLink(fetcher.Config(ctx))
	}
}

func (l *Link) CreateOffer() (webrtc.SessionDescription, error) {
	return l.pc.CreateOffer(nil)
}

func (l *Link) CreateAnswer() (webrtc.SessionDescription, error) {
	return l.pc.CreateAnswer(nil)
}

// SetLocalDescription commits the description and arms the gathering-done
// promise for it. The promise must exist before the commit, otherwise
// completion can be missed.
func (l *Link) SetLocalDescription(d webrtc.SessionDescription) error {
	done := webrtc.GatheringCompletePromise(l.pc)
	if err := l.pc.SetLocalDescription(d); err != nil {
		return err
	}
	l.mu.Lock()
	l.gather = done
	l.mu.Unlock()
	return nil
}

func (l *Link) SetRemoteDescription(d webrtc.SessionDescription) error {
	return l.pc.SetRemoteDescription(d)
}

func (l *Link) LocalDescription() *webrtc.SessionDescription {
	return l.pc.LocalDescription()
}

func (l *Link) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return l.pc.AddICECandidate(ci)
}

// GatheringComplete reports completion for the current local description.
// Before any local description exists it never fires; callers bound the
// wait.
func (l *Link) GatheringComplete() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gather == nil {
		return make(chan struct{})
	}
	return l.gather
}

func (l *Link) AddTrack(t core.LocalTrack) error {
	tl := t.Unwrap()
	if tl == nil {
		return errors.New("local track has no transmittable form")
	}
	sender, err := l.pc.AddTrack(tl)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.senders = append(l.senders, sender)
	l.mu.Unlock()
	return nil
}

// StopSenders detaches and stops every outgoing sender. Idempotent.
func (l *Link) StopSenders() {
	l.mu.Lock()
	senders := l.senders
	l.senders = nil
	l.mu.Unlock()

	for _, sender := range senders {
		if err := l.pc.RemoveTrack(sender); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Msg("remove track")
		}
		if err := sender.Stop(); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Msg("stop sender")
		}
	}
}

// RestartICE creates and commits an ICE-restart offer for in-place
// renegotiation.
func (l *Link) RestartICE() (webrtc.SessionDescription, error) {
	offer, err := l.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: true})
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := l.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (l *Link) SignalingState() webrtc.SignalingState {
	return l.pc.SignalingState()
}

func (l *Link) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	l.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil {
			fn(c.ToJSON())
		}
	})
}

func (l *Link) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	l.pc.OnConnectionStateChange(fn)
}

func (l *Link) OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState)) {
	l.pc.OnICEConnectionStateChange(fn)
}

func (l *Link) OnTrack(fn func(core.RemoteTrack)) {
	l.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("remote track")
		fn(remoteTrack{track})
	})
}

func (l *Link) Close() error {
	return l.pc.Close()
}

// remoteTrack adapts *webrtc.TrackRemote to the read-only core view.
type remoteTrack struct {
	t *webrtc.TrackRemote
}

func (r remoteTrack) ID() string                { return r.t.ID() }
func (r remoteTrack) StreamID() string          { return r.t.StreamID() }
func (r remoteTrack) Kind() webrtc.RTPCodecType { return r.t.Kind() }
