package core

import "errors"

// Error taxonomy for call setup. Setup operations return these wrapped with
// context; background work (candidate application, restart attempts) logs and
// continues instead.
var (
	// ErrMediaAcquisition means local capture could not be acquired
	// (permission denied or no device). Fatal to call setup.
	ErrMediaAcquisition = errors.New("local media acquisition failed")

	// ErrLinkInit means the peer link could not reach a stable signaling
	// state after (re)initialization. Fatal, triggers teardown.
	ErrLinkInit = errors.New("peer link initialization failed")

	// ErrDecode marks a malformed signaling payload. Fatal for offers and
	// answers, dropped with a warning for candidates.
	ErrDecode = errors.New("malformed signaling payload")

	// ErrSetupTimeout means the whole setup sequence exceeded its bound.
	ErrSetupTimeout = errors.New("call setup timed out")

	// ErrInvalidState rejects an operation that has no meaning in the
	// session's current signaling state.
	ErrInvalidState = errors.New("invalid signaling state for operation")

	// ErrSessionBusy rejects a second call-setup attempt while one is
	// already in flight on the same session.
	ErrSessionBusy = errors.New("call setup already in flight")

	// ErrSessionClosed rejects operations on a torn-down session.
	ErrSessionClosed = errors.New("session closed")

	// ErrCallRejected is surfaced when the remote peer declines the call.
	ErrCallRejected = errors.New("call rejected by remote peer")

	// ErrCallFailed is surfaced when connectivity is lost and the recovery
	// attempt did not bring it back.
	ErrCallFailed = errors.New("call failed")
)
