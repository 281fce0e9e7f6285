package call

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/nkrett/callwire/internal/core"
)

// fakeLink is an in-memory PeerLink. Tests drive its callbacks directly to
// simulate gathered candidates, remote tracks and state transitions.
type fakeLink struct {
	mu         sync.Mutex
	localDesc  *webrtc.SessionDescription
	remoteDesc *webrtc.SessionDescription
	applied    []webrtc.ICECandidateInit
	tracks     []core.LocalTrack
	stopped    bool
	closed     bool
	gather     chan struct{}

	restartCalls int

	// failure injection
	rejectCandidate func(webrtc.ICECandidateInit) bool
	offerErr        error
	answerErr       error

	onCandidate func(webrtc.ICECandidateInit)
	onConn      func(webrtc.PeerConnectionState)
	onICE       func(webrtc.ICEConnectionState)
	onTrack     func(core.RemoteTrack)
}

func newFakeLink() *fakeLink {
	g := make(chan struct{})
	close(g) // gathering is instant unless a test overrides
	return &fakeLink{gather: g}
}

func (l *fakeLink) CreateOffer() (webrtc.SessionDescription, error) {
	if l.offerErr != nil {
		return webrtc.SessionDescription{}, l.offerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 fake-offer"}, nil
}

func (l *fakeLink) CreateAnswer() (webrtc.SessionDescription, error) {
	if l.answerErr != nil {
		return webrtc.SessionDescription{}, l.answerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 fake-answer"}, nil
}

func (l *fakeLink) SetLocalDescription(d webrtc.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.localDesc = &d
	return nil
}

func (l *fakeLink) SetRemoteDescription(d webrtc.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remoteDesc = &d
	return nil
}

func (l *fakeLink) LocalDescription() *webrtc.SessionDescription {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.localDesc
}

func (l *fakeLink) AddICECandidate(ci webrtc.ICECandidateInit) error {
	if l.rejectCandidate != nil && l.rejectCandidate(ci) {
		return fmt.Errorf("rejected candidate %q", ci.Candidate)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applied = append(l.applied, ci)
	return nil
}

func (l *fakeLink) GatheringComplete() <-chan struct{} { return l.gather }

func (l *fakeLink) AddTrack(t core.LocalTrack) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracks = append(l.tracks, t)
	return nil
}

func (l *fakeLink) StopSenders() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
}

func (l *fakeLink) RestartICE() (webrtc.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.restartCalls++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 fake-restart-offer"}, nil
}

func (l *fakeLink) SignalingState() webrtc.SignalingState { return webrtc.SignalingStateStable }

func (l *fakeLink) OnICECandidate(fn func(webrtc.ICECandidateInit)) { l.onCandidate = fn }
func (l *fakeLink) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	l.onConn = fn
}
func (l *fakeLink) OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState)) {
	l.onICE = fn
}
func (l *fakeLink) OnTrack(fn func(core.RemoteTrack)) { l.onTrack = fn }

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLink) appliedCandidates() []webrtc.ICECandidateInit {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]webrtc.ICECandidateInit, len(l.applied))
	copy(out, l.applied)
	return out
}

// fakeLinks is a LinkFactory that records every link it built.
type fakeLinks struct {
	mu    sync.Mutex
	built []*fakeLink
	err   error
}

func (f *fakeLinks) factory(context.Context) (core.PeerLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	l := newFakeLink()
	f.built = append(f.built, l)
	return l, nil
}

func (f *fakeLinks) last() *fakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.built) == 0 {
		return nil
	}
	return f.built[len(f.built)-1]
}

func (f *fakeLinks) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.built)
}

// fakeTrack is a local track without a pion backing.
type fakeTrack struct {
	id      string
	kind    webrtc.RTPCodecType
	enabled bool
	mu      sync.Mutex
}

func (t *fakeTrack) ID() string                { return t.id }
func (t *fakeTrack) Kind() webrtc.RTPCodecType { return t.kind }
func (t *fakeTrack) SetEnabled(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = v
}
func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}
func (t *fakeTrack) Unwrap() webrtc.TrackLocal { return nil }

// fakeMedia hands out one audio and one video fake track per acquisition.
type fakeMedia struct {
	mu          sync.Mutex
	denyErr     error
	blockOn     chan struct{} // when set, Acquire waits for it or ctx
	entered     chan struct{} // closed once Acquire has been reached
	enteredOnce sync.Once
	acquired    int
	released    int
	tracks      []*fakeTrack
}

func (m *fakeMedia) Acquire(ctx context.Context) (*core.LocalMedia, error) {
	m.mu.Lock()
	deny := m.denyErr
	block := m.blockOn
	entered := m.entered
	m.mu.Unlock()

	if entered != nil {
		m.enteredOnce.Do(func() { close(entered) })
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if deny != nil {
		return nil, deny
	}

	audio := &fakeTrack{id: "a0", kind: webrtc.RTPCodecTypeAudio, enabled: true}
	video := &fakeTrack{id: "v0", kind: webrtc.RTPCodecTypeVideo, enabled: true}

	m.mu.Lock()
	m.acquired++
	m.tracks = append(m.tracks, audio, video)
	m.mu.Unlock()

	return core.NewLocalMedia([]core.LocalTrack{audio, video}, func() {
		m.mu.Lock()
		m.released++
		m.mu.Unlock()
	}), nil
}

func (m *fakeMedia) counts() (acquired, released int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired, m.released
}

// fakeChannel records outgoing envelopes and can deliver them synchronously
// to a peer, standing in for a relay with zero latency.
type fakeChannel struct {
	mu      sync.Mutex
	sent    []core.Envelope
	deliver func(core.Envelope)
}

func (c *fakeChannel) Send(env core.Envelope) error {
	c.mu.Lock()
	c.sent = append(c.sent, env)
	deliver := c.deliver
	c.mu.Unlock()
	if deliver != nil {
		deliver(env)
	}
	return nil
}

func (c *fakeChannel) Close() {}

func (c *fakeChannel) envelopes() []core.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Envelope, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeChannel) byType(t core.EnvelopeType) []core.Envelope {
	var out []core.Envelope
	for _, e := range c.envelopes() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// fakeEvents counts notifications.
type fakeEvents struct {
	mu          sync.Mutex
	established int
	failed      int
	closed      int
	lastErr     error
	tracks      []core.RemoteTrack
}

func (e *fakeEvents) Established() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.established++
}

func (e *fakeEvents) Failed(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failed++
	e.lastErr = err
}

func (e *fakeEvents) Closed() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed++
}

func (e *fakeEvents) RemoteTrack(t core.RemoteTrack) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tracks = append(e.tracks, t)
}

func (e *fakeEvents) counts() (established, failed, closed int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.established, e.failed, e.closed
}

// fakeRemoteTrack mirrors a local track across the fake wire.
type fakeRemoteTrack struct {
	id     string
	stream string
	kind   webrtc.RTPCodecType
}

func (t fakeRemoteTrack) ID() string                { return t.id }
func (t fakeRemoteTrack) StreamID() string          { return t.stream }
func (t fakeRemoteTrack) Kind() webrtc.RTPCodecType { return t.kind }

// testSession builds a session with all fakes wired in.
func testSession(identity string) (*Session, *fakeLinks, *fakeMedia, *fakeChannel, *fakeEvents) {
	links := &fakeLinks{}
	media := &fakeMedia{}
	channel := &fakeChannel{}
	events := &fakeEvents{}
	s := NewSession(Config{
		Identity: identity,
		Links:    links.factory,
		Media:    media,
		Signals:  channel,
		Events:   events,
	})
	return s, links, media, channel, events
}

func validOfferPayload() string {
	return core.EncodeDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 wire-offer"})
}

func validAnswerPayload() string {
	return core.EncodeDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 wire-answer"})
}

func candidatePayload(n int) string {
	return core.EncodeCandidate(webrtc.ICECandidateInit{Candidate: fmt.Sprintf("candidate:%d 1 udp 2122260223 192.0.2.%d 5000 typ host", n, n)})
}
