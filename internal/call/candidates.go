package call

import (
	"github.com/pion/webrtc/v4"

	"github.com/nkrett/callwire/internal/core"
)

// EnqueueRemoteCandidate takes one remote candidate payload. With a remote
// description in place the candidate is applied immediately; before that it
// is queued for the post-commit flush. A malformed or failing candidate is
// logged and dropped — it must never abort the call or block candidates
// that follow it.
func (s *Session) EnqueueRemoteCandidate(candidatePayload string) {
	ci, err := core.DecodeCandidate(candidatePayload)
	if err != nil {
		s.logger.Warn().Err(err).Msg("dropping malformed remote candidate")
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if !s.remoteDescSet || s.link == nil {
		s.pending = append(s.pending, ci)
		n := len(s.pending)
		s.mu.Unlock()
		s.logger.Debug().Int("queued", n).Msg("candidate queued before remote description")
		return
	}
	link := s.link
	s.mu.Unlock()

	if err := link.AddICECandidate(ci); err != nil {
		s.logger.Warn().Err(err).Msg("dropping candidate the link refused")
	}
}

// commitRemoteDescription runs immediately after any remote description is
// committed (offer or answer path). It marks the description present and
// drains the pending queue in arrival order; each candidate is applied
// exactly once, and one that fails to apply is dropped with a warning.
func (s *Session) commitRemoteDescription() {
	s.mu.Lock()
	s.remoteDescSet = true
	queued := s.pending
	s.pending = nil
	link := s.link
	s.mu.Unlock()

	if link == nil || len(queued) == 0 {
		return
	}
	s.logger.Debug().Int("count", len(queued)).Msg("flushing queued candidates")
	for _, ci := range queued {
		if err := link.AddICECandidate(ci); err != nil {
			s.logger.Warn().Err(err).Msg("dropping queued candidate the link refused")
		}
	}
}

// forwardLocalCandidate ships a locally gathered candidate to the remote
// peer. Best effort: the protocol tolerates loss and reordering here.
func (s *Session) forwardLocalCandidate(ci webrtc.ICECandidateInit) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	env := core.Envelope{
		Type:    core.EnvelopeCandidate,
		From:    s.cfg.Identity,
		To:      s.remoteIdentity,
		Call:    s.callID,
		Payload: core.EncodeCandidate(ci),
	}
	s.mu.Unlock()

	if err := s.cfg.Signals.Send(env); err != nil {
		s.logger.Warn().Err(err).Msg("local candidate send failed")
	}
}
