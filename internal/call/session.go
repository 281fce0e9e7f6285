// Package call implements the call-session state machine: local media
// acquisition, offer/answer exchange, ICE candidate queuing, connection
// recovery and idempotent teardown. It drives the peer link, media and
// signaling capabilities defined in core but implements none of them.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nkrett/callwire/internal/core"
)

const (
	defaultSetupTimeout  = 30 * time.Second
	defaultGatherTimeout = 2 * time.Second
)

// Config wires a session to its collaborators. Everything is fixed at
// construction; there is no process-wide state.
type Config struct {
	// Identity is this peer's signaling identity, stamped on outgoing
	// envelopes.
	Identity string
	// Links builds a fresh peer link on every reset.
	Links core.LinkFactory
	// Media acquires local capture.
	Media core.MediaSource
	// Signals carries envelopes to the remote peer.
	Signals core.SignalingChannel
	// Events receives session notifications. Optional.
	Events core.Events
	// SetupTimeout bounds the whole initiate/accept sequence. Default 30s.
	SetupTimeout time.Duration
	// GatherTimeout bounds the wait for ICE gathering while building an
	// answer; on expiry the answer is sent as-is and candidates trickle.
	GatherTimeout time.Duration
}

// Session owns one peer connection's lifecycle. Exactly one session may be
// live per logical call; starting a new call tears the previous one down
// first. All mutation goes through one mutex, so link callbacks and setup
// operations never race.
type Session struct {
	id     string
	cfg    Config
	events core.Events
	logger zerolog.Logger

	mu             sync.Mutex
	role           Role
	state          State
	closed         bool
	setupInFlight  bool
	remoteIdentity string
	callID         string
	link           core.PeerLink
	localMedia     *core.LocalMedia
	remoteDescSet  bool
	pending        []webrtc.ICECandidateInit
	quality        string

	restartAttempted bool
	restartPending   bool
	recovering       bool
	establishedFired bool
	failedFired      bool

	remoteMedia *core.RemoteMedia
}

func NewSession(cfg Config) *Session {
	if cfg.SetupTimeout <= 0 {
		cfg.SetupTimeout = defaultSetupTimeout
	}
	if cfg.GatherTimeout <= 0 {
		cfg.GatherTimeout = defaultGatherTimeout
	}
	if cfg.Events == nil {
		cfg.Events = core.NopEvents{}
	}
	id := uuid.NewString()
	return &Session{
		id:          id,
		cfg:         cfg,
		events:      cfg.Events,
		logger:      log.With().Str("module", "call").Str("session", id).Logger(),
		state:       StateIdle,
		remoteMedia: core.NewRemoteMedia(),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

func (s *Session) CallID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callID
}

func (s *Session) RemoteIdentity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteIdentity
}

// ConnectionQuality is the last-observed link state string. Informational
// only; never used for correctness decisions.
func (s *Session) ConnectionQuality() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quality
}

// RemoteMedia exposes the remote track accumulator by reference. The session
// keeps mutating it as tracks arrive; readers take snapshots via Tracks().
func (s *Session) RemoteMedia() *core.RemoteMedia { return s.remoteMedia }

// BindRemote records the remote identity and call ID learned from an
// incoming envelope. Values already set are kept.
func (s *Session) BindRemote(identity, callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remoteIdentity == "" {
		s.remoteIdentity = identity
	}
	if s.callID == "" && callID != "" {
		s.callID = callID
	}
}

// Initiate starts an outgoing call: acquires local media, builds a fresh
// link, attaches tracks and commits an offer. Returns the encoded offer
// payload for transmission. On any failure the session rolls back to Idle.
func (s *Session) Initiate(ctx context.Context, remoteIdentity string) (string, error) {
	if err := s.beginSetup(); err != nil {
		return "", err
	}
	defer s.endSetup()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SetupTimeout)
	defer cancel()

	payload, err := s.runInitiate(ctx, remoteIdentity)
	if err != nil {
		s.rollbackSetup()
		return "", err
	}
	return payload, nil
}

func (s *Session) runInitiate(ctx context.Context, remoteIdentity string) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", core.ErrSessionClosed
	}
	s.role = RoleCaller
	s.remoteIdentity = remoteIdentity
	if s.callID == "" {
		s.callID = uuid.NewString()
	}
	s.state = StateAwaitingLocalMedia
	s.mu.Unlock()

	if err := s.ensureMedia(ctx); err != nil {
		return "", err
	}
	if err := s.resetLink(ctx); err != nil {
		return "", err
	}
	if err := s.attachLocalTracks(ctx); err != nil {
		return "", err
	}

	link := s.currentLink()
	if link == nil {
		return "", core.ErrSessionClosed
	}
	offer, err := link.CreateOffer()
	if err != nil {
		return "", setupErr(ctx, core.ErrLinkInit, err)
	}
	if err := link.SetLocalDescription(offer); err != nil {
		return "", setupErr(ctx, core.ErrLinkInit, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", core.ErrSessionClosed
	}
	s.state = StateOfferCreated
	s.mu.Unlock()

	s.logger.Info().Str("remote", remoteIdentity).Msg("offer created")
	return core.EncodeDescription(offer), nil
}

// AcceptIncoming handles a remote offer: resets any stale link, acquires
// local media, commits the remote description (which drains queued
// candidates) and attaches local tracks. A payload that fails to decode
// leaves the session exactly as it was: Idle, nothing acquired.
func (s *Session) AcceptIncoming(ctx context.Context, offerPayload string) error {
	offer, err := core.DecodeDescription(offerPayload)
	if err != nil {
		return err
	}
	if offer.Type != webrtc.SDPTypeOffer {
		return fmt.Errorf("%w: expected offer, got %s", core.ErrDecode, offer.Type)
	}

	if err := s.beginSetup(); err != nil {
		return err
	}
	defer s.endSetup()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SetupTimeout)
	defer cancel()

	if err := s.runAccept(ctx, offer); err != nil {
		s.rollbackSetup()
		return err
	}
	return nil
}

func (s *Session) runAccept(ctx context.Context, offer webrtc.SessionDescription) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return core.ErrSessionClosed
	}
	s.role = RoleCallee
	if s.callID == "" {
		s.callID = uuid.NewString()
	}
	s.state = StateAwaitingLocalMedia
	s.mu.Unlock()

	if err := s.resetLink(ctx); err != nil {
		return err
	}
	if err := s.ensureMedia(ctx); err != nil {
		return err
	}

	link := s.currentLink()
	if link == nil {
		return core.ErrSessionClosed
	}
	if err := link.SetRemoteDescription(offer); err != nil {
		return setupErr(ctx, core.ErrLinkInit, err)
	}
	s.commitRemoteDescription()

	if err := s.attachLocalTracks(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return core.ErrSessionClosed
	}
	s.state = StateOfferReceived
	s.mu.Unlock()

	s.logger.Info().Msg("remote offer accepted")
	return nil
}

// CreateAnswer produces and commits an answer for a previously accepted
// offer. It waits a bounded time for local ICE gathering so the answer
// carries gathered candidates; on timeout it proceeds, since trickled
// candidates sent separately are also acceptable.
func (s *Session) CreateAnswer(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", core.ErrSessionClosed
	}
	if !s.remoteDescSet || s.state != StateOfferReceived || s.link == nil {
		st := s.state
		s.mu.Unlock()
		return "", fmt.Errorf("%w: no remote offer set (state %s)", core.ErrInvalidState, st)
	}
	link := s.link
	s.mu.Unlock()

	answer, err := link.CreateAnswer()
	if err != nil {
		return "", fmt.Errorf("%w: create answer: %v", core.ErrLinkInit, err)
	}
	if err := link.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("%w: commit answer: %v", core.ErrLinkInit, err)
	}

	select {
	case <-link.GatheringComplete():
		if d := link.LocalDescription(); d != nil {
			answer = *d
		}
	case <-time.After(s.cfg.GatherTimeout):
		s.logger.Debug().Msg("answering before gathering completed, candidates will trickle")
	case <-ctx.Done():
	}

	s.mu.Lock()
	if !s.closed {
		s.state = StateAnswerCreated
	}
	s.mu.Unlock()

	s.logger.Info().Msg("answer created")
	return core.EncodeDescription(answer), nil
}

// ApplyAnswer commits the remote answer. Outside the expected state this is
// a logged no-op rather than an error: remote peers may resend.
func (s *Session) ApplyAnswer(answerPayload string) error {
	answer, err := core.DecodeDescription(answerPayload)
	if err != nil {
		return err
	}
	if answer.Type != webrtc.SDPTypeAnswer {
		return fmt.Errorf("%w: expected answer, got %s", core.ErrDecode, answer.Type)
	}

	s.mu.Lock()
	restart := s.restartPending
	if s.closed || s.link == nil || (!restart && s.state != StateOfferCreated) {
		st := s.state
		s.mu.Unlock()
		s.logger.Warn().Str("state", st.String()).Msg("answer ignored in current state")
		return nil
	}
	s.restartPending = false
	link := s.link
	s.mu.Unlock()

	if err := link.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("%w: apply answer: %v", core.ErrLinkInit, err)
	}
	s.commitRemoteDescription()

	s.mu.Lock()
	if !s.closed && !restart {
		s.state = StateAnswerReceived
	}
	s.mu.Unlock()

	s.logger.Info().Bool("restart", restart).Msg("remote answer applied")
	return nil
}

// MuteAudio toggles local audio track enablement. No-op without local media.
func (s *Session) MuteAudio(muted bool) {
	s.setKindEnabled(webrtc.RTPCodecTypeAudio, !muted)
}

// HideVideo toggles local video track enablement. No-op without local media.
func (s *Session) HideVideo(hidden bool) {
	s.setKindEnabled(webrtc.RTPCodecTypeVideo, !hidden)
}

func (s *Session) setKindEnabled(kind webrtc.RTPCodecType, enabled bool) {
	s.mu.Lock()
	media := s.localMedia
	s.mu.Unlock()
	if media == nil {
		return
	}
	media.SetKindEnabled(kind, enabled)
}

// Hangup notifies the remote peer and tears the session down.
func (s *Session) Hangup() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	env := core.Envelope{
		Type: core.EnvelopeEndCall,
		From: s.cfg.Identity,
		To:   s.remoteIdentity,
		Call: s.callID,
	}
	s.mu.Unlock()

	if err := s.cfg.Signals.Send(env); err != nil {
		s.logger.Warn().Err(err).Msg("end-call send failed")
	}
	s.Teardown()
}

// Teardown releases everything the session owns: local and remote media,
// the peer link, the pending queue. Idempotent and safe at any point,
// including on a never-started session; operations still in flight detect
// the closed flag and discard their results.
func (s *Session) Teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.state = StateClosed
	link := s.link
	s.link = nil
	media := s.localMedia
	s.localMedia = nil
	s.pending = nil
	s.remoteDescSet = false
	s.mu.Unlock()

	if link != nil {
		link.StopSenders()
		if err := link.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("link close")
		}
	}
	if media != nil {
		media.Release()
	}
	s.remoteMedia.Clear()

	s.logger.Info().Msg("session torn down")
	s.events.Closed()
}

// beginSetup claims the single in-flight setup token. A second concurrent
// Initiate/AcceptIncoming is rejected rather than queued.
func (s *Session) beginSetup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrSessionClosed
	}
	if s.setupInFlight {
		return core.ErrSessionBusy
	}
	s.setupInFlight = true
	return nil
}

func (s *Session) endSetup() {
	s.mu.Lock()
	s.setupInFlight = false
	s.mu.Unlock()
}

// rollbackSetup returns a failed setup attempt to Idle, releasing whatever
// the attempt acquired. A session torn down mid-attempt stays Closed.
func (s *Session) rollbackSetup() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	link := s.link
	s.link = nil
	media := s.localMedia
	s.localMedia = nil
	s.remoteDescSet = false
	s.role = RoleNone
	s.state = StateIdle
	s.mu.Unlock()

	if link != nil {
		link.StopSenders()
		_ = link.Close()
	}
	if media != nil {
		media.Release()
	}
}

func (s *Session) ensureMedia(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return core.ErrSessionClosed
	}
	if s.localMedia != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	media, err := s.cfg.Media.Acquire(ctx)
	if err != nil {
		return setupErr(ctx, core.ErrMediaAcquisition, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		media.Release()
		return core.ErrSessionClosed
	}
	s.localMedia = media
	s.mu.Unlock()
	return nil
}

// resetLink tears down any existing link and builds a new one bound to
// freshly fetched ICE configuration. Idempotent: with no existing link it
// only creates the new one. The old link is fully closed before the new one
// exists, so the session never holds two live links.
func (s *Session) resetLink(ctx context.Context) error {
	s.mu.Lock()
	old := s.link
	s.link = nil
	s.remoteDescSet = false
	s.restartAttempted = false
	s.restartPending = false
	s.recovering = false
	s.mu.Unlock()

	if old != nil {
		old.StopSenders()
		_ = old.Close()
		s.logger.Debug().Msg("stale link closed")
	}

	link, err := s.cfg.Links(ctx)
	if err != nil {
		return setupErr(ctx, core.ErrLinkInit, err)
	}
	if st := link.SignalingState(); st != webrtc.SignalingStateStable {
		_ = link.Close()
		return fmt.Errorf("%w: new link in state %s", core.ErrLinkInit, st)
	}

	link.OnICECandidate(s.forwardLocalCandidate)
	link.OnTrack(s.onRemoteTrack)
	link.OnConnectionStateChange(s.onConnectionState)
	link.OnICEConnectionStateChange(s.onICEConnectionState)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		link.StopSenders()
		_ = link.Close()
		return core.ErrSessionClosed
	}
	s.link = link
	s.mu.Unlock()
	return nil
}

func (s *Session) attachLocalTracks(ctx context.Context) error {
	s.mu.Lock()
	link, media := s.link, s.localMedia
	s.mu.Unlock()
	if link == nil || media == nil {
		return core.ErrSessionClosed
	}
	for _, t := range media.Tracks() {
		if err := link.AddTrack(t); err != nil {
			return setupErr(ctx, core.ErrLinkInit, err)
		}
	}
	return nil
}

func (s *Session) currentLink() core.PeerLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link
}

func (s *Session) onRemoteTrack(t core.RemoteTrack) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.remoteMedia.Merge(t)
	s.logger.Info().Str("kind", t.Kind().String()).Str("track_id", t.ID()).Msg("remote track merged")
	s.events.RemoteTrack(t)
}

// setupErr classifies a setup-step failure: an expired deadline means the
// bounded setup window ran out; everything else, including a caller-cancelled
// context, keeps its step-specific sentinel.
func setupErr(ctx context.Context, sentinel, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", core.ErrSetupTimeout, err)
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}
