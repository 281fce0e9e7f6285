package call

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/nkrett/callwire/internal/core"
)

// HandleEnvelope routes one incoming signaling message to the session. It is
// the single entry point transport read loops call; the transport guarantees
// nothing about ordering, so candidates may arrive before or interleaved
// with the offer/answer exchange.
//
// Propagation follows the session's error policy: an unreadable offer is
// rejected back to the caller and leaves this session untouched, an
// unreadable answer is terminal, and candidate problems are logged and
// swallowed.
func (s *Session) HandleEnvelope(ctx context.Context, env core.Envelope) {
	switch env.Type {
	case core.EnvelopeOffer:
		s.handleOfferEnvelope(ctx, env)

	case core.EnvelopeAnswer:
		s.BindRemote(env.From, env.Call)
		if err := s.ApplyAnswer(env.Payload); err != nil {
			s.logger.Error().Err(err).Msg("answer unusable")
			s.failTerminal(err)
		}

	case core.EnvelopeCandidate:
		s.EnqueueRemoteCandidate(env.Payload)

	case core.EnvelopeCallAccepted:
		s.logger.Info().Str("from", env.From).Msg("remote accepted call")

	case core.EnvelopeCallRejected:
		s.logger.Info().Str("from", env.From).Str("reason", env.Reason).Msg("remote rejected call")
		s.failTerminal(core.ErrCallRejected)

	case core.EnvelopeEndCall:
		s.logger.Info().Str("from", env.From).Msg("remote ended call")
		s.Teardown()

	case core.EnvelopeError:
		// Relay-originated: our addressee is unreachable. Fatal for a
		// one-to-one call.
		s.logger.Error().Str("reason", env.Reason).Msg("relay reported delivery failure")
		s.failTerminal(fmt.Errorf("%w: %s", core.ErrCallFailed, env.Reason))

	default:
		s.logger.Warn().Str("type", string(env.Type)).Msg("unknown signal")
	}
}

func (s *Session) handleOfferEnvelope(ctx context.Context, env core.Envelope) {
	s.BindRemote(env.From, env.Call)

	// An offer arriving mid-call is the remote side renegotiating (ICE
	// restart): apply it on the existing link instead of rebuilding.
	if s.midCall() {
		offer, err := core.DecodeDescription(env.Payload)
		if err != nil || offer.Type != webrtc.SDPTypeOffer {
			s.logger.Warn().Err(err).Msg("dropping unreadable renegotiation offer")
			return
		}
		payload, err := s.renegotiate(offer)
		if err != nil {
			s.logger.Warn().Err(err).Msg("renegotiation failed")
			return
		}
		s.sendEnvelope(core.EnvelopeAnswer, payload, "")
		return
	}

	if err := s.AcceptIncoming(ctx, env.Payload); err != nil {
		s.logger.Error().Err(err).Msg("incoming offer not accepted")
		s.sendEnvelope(core.EnvelopeCallRejected, "", err.Error())
		return
	}
	s.sendEnvelope(core.EnvelopeCallAccepted, "", "")

	payload, err := s.CreateAnswer(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("answer construction failed")
		s.failTerminal(err)
		return
	}
	s.sendEnvelope(core.EnvelopeAnswer, payload, "")
}

// renegotiate applies a mid-call remote offer on the live link and returns
// the encoded answer.
func (s *Session) renegotiate(offer webrtc.SessionDescription) (string, error) {
	link := s.currentLink()
	if link == nil {
		return "", core.ErrSessionClosed
	}
	if err := link.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("%w: renegotiate offer: %v", core.ErrLinkInit, err)
	}
	s.commitRemoteDescription()

	answer, err := link.CreateAnswer()
	if err != nil {
		return "", fmt.Errorf("%w: renegotiate answer: %v", core.ErrLinkInit, err)
	}
	if err := link.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("%w: commit renegotiate answer: %v", core.ErrLinkInit, err)
	}
	s.logger.Info().Msg("renegotiated in place")
	return core.EncodeDescription(answer), nil
}

func (s *Session) midCall() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.link != nil && s.remoteDescSet
}

func (s *Session) sendEnvelope(t core.EnvelopeType, payload, reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	env := core.Envelope{
		Type:    t,
		From:    s.cfg.Identity,
		To:      s.remoteIdentity,
		Call:    s.callID,
		Payload: payload,
		Reason:  reason,
	}
	s.mu.Unlock()

	if err := s.cfg.Signals.Send(env); err != nil {
		s.logger.Warn().Err(err).Str("type", string(t)).Msg("signal send failed")
	}
}
