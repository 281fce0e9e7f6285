// Package core contains the interfaces and shared types the call session is
// built against: the peer-link and media capabilities, the signaling
// envelope, and the error taxonomy. No transport or pion wiring lives here.
package core

// SignalingChannel sends out-of-band messages to the remote peer. Delivery is
// at-least-once and unordered; the session never assumes more.
// Owned by the adapter; the adapter must Close() it.
type SignalingChannel interface {
	Send(Envelope) error
	Close()
}

// Events is the fixed notification surface a session is constructed with.
// Each terminal notification fires at most once per session.
type Events interface {
	// Established fires once when the connection first reaches connected.
	Established()
	// Failed fires once when connectivity is lost for good.
	Failed(err error)
	// Closed fires once on teardown.
	Closed()
	// RemoteTrack fires for every track merged into the remote media set.
	RemoteTrack(RemoteTrack)
}

// NopEvents discards all notifications.
type NopEvents struct{}

func (NopEvents) Established()            {}
func (NopEvents) Failed(error)            {}
func (NopEvents) Closed()                 {}
func (NopEvents) RemoteTrack(RemoteTrack) {}
