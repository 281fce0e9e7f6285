package call

import (
	"github.com/pion/webrtc/v4"

	"github.com/nkrett/callwire/internal/core"
)

// Connection-state policy: the first disconnected/failed observation gets
// exactly one in-place ICE restart; a failure observed after the restarted
// link made progress again is terminal and fires Failed once. Reaching
// connected fires Established once and re-arms the restart budget for the
// next failure episode.
//
// One failure episode surfaces on both state channels: the connection state
// is derived from the ICE transport state, so an ICE failure is echoed as a
// connection failure moments later (and disconnected is often followed by
// failed on the same channel). Such repeats while the restart is still
// renegotiating belong to the episode that triggered it and must not be
// counted as the restart having failed.

func (s *Session) onConnectionState(st webrtc.PeerConnectionState) {
	s.observeLinkState(st.String())
}

func (s *Session) onICEConnectionState(st webrtc.ICEConnectionState) {
	s.observeLinkState(st.String())
}

func (s *Session) observeLinkState(state string) {
	var fireEstablished, fireFailed, tryRestart bool

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.quality = state
	switch state {
	case "connected":
		if !s.establishedFired {
			s.establishedFired = true
			s.state = StateConnected
			fireEstablished = true
		}
		s.restartAttempted = false
		s.recovering = false
	case "disconnected", "failed":
		if s.failedFired {
			break
		}
		if !s.restartAttempted {
			s.restartAttempted = true
			s.recovering = true
			tryRestart = true
			break
		}
		if s.recovering {
			// Same episode: the other channel's echo, or noise before
			// the restart renegotiated.
			break
		}
		s.failedFired = true
		s.state = StateFailed
		fireFailed = true
	case "closed":
		// Terminal. Teardown owns the cleanup.
	default:
		// checking/connecting: the restarted link is making progress,
		// so the next failure is the restart itself failing.
		s.recovering = false
	}
	s.mu.Unlock()

	s.logger.Info().Str("link_state", state).Msg("link state")

	if fireEstablished {
		s.events.Established()
	}
	if tryRestart {
		s.attemptRestart()
	}
	if fireFailed {
		s.events.Failed(core.ErrCallFailed)
	}
}

// attemptRestart asks the link to renegotiate in place and forwards the
// restart offer. Best effort: any failure here is logged, and the next
// failed observation goes terminal.
func (s *Session) attemptRestart() {
	s.mu.Lock()
	link := s.link
	s.mu.Unlock()
	if link == nil {
		return
	}

	s.logger.Info().Msg("attempting ICE restart")
	offer, err := link.RestartICE()
	if err != nil {
		s.logger.Warn().Err(err).Msg("ICE restart failed")
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.restartPending = true
	env := core.Envelope{
		Type:    core.EnvelopeOffer,
		From:    s.cfg.Identity,
		To:      s.remoteIdentity,
		Call:    s.callID,
		Payload: core.EncodeDescription(offer),
	}
	s.mu.Unlock()

	if err := s.cfg.Signals.Send(env); err != nil {
		s.logger.Warn().Err(err).Msg("restart offer send failed")
	}
}

// failTerminal fires Failed once and tears the session down. Used when an
// unrecoverable condition is detected outside the link-state path.
func (s *Session) failTerminal(err error) {
	s.mu.Lock()
	if s.closed || s.failedFired {
		s.mu.Unlock()
		s.Teardown()
		return
	}
	s.failedFired = true
	s.state = StateFailed
	s.mu.Unlock()

	s.events.Failed(err)
	s.Teardown()
}
